package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// BatchProcessor re-embeds batches of chunks and writes them back.
type BatchProcessor struct {
	documents storage.DocumentRepository
	embedder  ai.Embedder
	backoff   Backoff
}

// NewBatchProcessor creates a processor that retries embedding calls
// according to backoff.
func NewBatchProcessor(documents storage.DocumentRepository, embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{
		documents: documents,
		embedder:  embedder,
		backoff:   backoff,
	}
}

// Process embeds the chunks' text, normalizes the vectors and stores the
// updated chunks. Nothing is written if the embedder returns the wrong
// number of vectors or vectors of differing widths.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := bp.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("generating embeddings after %d attempts: %w", bp.backoff.MaxAttempts, err)
	}

	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(vectors))
	}
	if _, ok := uniformWidth(vectors); !ok {
		return fmt.Errorf("embedder returned vectors of differing widths")
	}

	updated := make([]*core.Chunk, len(chunks))
	for i, chunk := range chunks {
		c := *chunk
		c.Embedding = NormalizeVector(vectors[i])
		updated[i] = &c
	}

	if err := bp.documents.UpdateChunks(ctx, updated...); err != nil {
		return fmt.Errorf("updating chunks: %w", err)
	}
	return nil
}
