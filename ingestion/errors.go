package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrQueueRepositoryRequired is returned when an enrichment queue repository is not provided.
	ErrQueueRepositoryRequired = errors.New("enrichment queue repository required")

	// ErrIngestionQueueRequired is returned by Submit and ProcessIngestionQueue
	// when the engine was built without an ingestion queue.
	ErrIngestionQueueRequired = errors.New("ingestion queue repository required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrEmbeddingMismatch is returned when the provider returns the wrong
	// number of vectors or vectors of the wrong width.
	ErrEmbeddingMismatch = errors.New("embedding result mismatch")
)
