package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when a Backoff allows no attempts.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	ErrDocumentRepositoryRequired = errors.New("document repository is required")
	ErrEmbedderRequired           = errors.New("embedder is required")
)
