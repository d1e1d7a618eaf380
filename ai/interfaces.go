package ai

import (
	"context"

	"github.com/poiesic/docflow/core"
)

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EntityExtractor finds named entities in text.
// Implementations must be thread-safe for concurrent use.
type EntityExtractor interface {
	// ExtractEntities analyzes text written in language (an ISO 639-1 code such
	// as "es") and returns the entity mentions it contains.
	// Returns an empty slice if no entities are found.
	// Returns an error if extraction fails.
	ExtractEntities(ctx context.Context, text, language string) ([]EntityMention, error)
}

// CorpusMatcher performs approximate lookups against the reference corpus.
type CorpusMatcher interface {
	// FuzzyFind returns up to topK records of collection that resemble query,
	// best match first, each with a match score in [0,1].
	FuzzyFind(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error)
}

// EntityMention is a single entity occurrence identified in text.
type EntityMention struct {
	// Type classifies the entity (PERSON, ORG, LOC, DATE or CUSTOM).
	Type core.EntityType

	// Text is the entity surface form as it appears in the source text.
	Text string

	// Confidence is the extractor's certainty from 0 to 100.
	Confidence int

	// Start and End are byte offsets of Text in the analyzed text.
	// Both are -1 when the mention could not be located.
	Start int
	End   int

	// Context is a short excerpt around the mention.
	Context string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages Embedder and EntityExtractor instances,
// ensuring they share configuration and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// EntityExtractor returns the entity extraction service.
	// The returned EntityExtractor is safe for concurrent use.
	EntityExtractor() EntityExtractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
