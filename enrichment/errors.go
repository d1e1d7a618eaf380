package enrichment

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrQueueRepositoryRequired is returned when an enrichment queue repository is not provided.
	ErrQueueRepositoryRequired = errors.New("enrichment queue repository required")

	// ErrEntityRepositoryRequired is returned when an entity repository is not provided.
	ErrEntityRepositoryRequired = errors.New("entity repository required")

	// ErrCrossReferenceRepositoryRequired is returned when a cross-reference repository is not provided.
	ErrCrossReferenceRepositoryRequired = errors.New("cross-reference repository required")

	// ErrExtractorRequired is returned when an entity extractor is not provided.
	ErrExtractorRequired = errors.New("entity extractor required")

	// ErrMatcherRequired is returned when a corpus matcher is not provided.
	ErrMatcherRequired = errors.New("corpus matcher required")

	// ErrNoChunks is returned when a document has no stored chunks to enrich.
	ErrNoChunks = errors.New("document has no chunks")
)
