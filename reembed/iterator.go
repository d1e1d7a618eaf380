package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// DefaultBatchSize is the default number of chunks handed to fn per call.
const DefaultBatchSize = 100

// ChunkIterator walks every stored chunk in document key order.
type ChunkIterator struct {
	documents storage.DocumentRepository
	batchSize int
}

// NewChunkIterator creates an iterator. A batchSize of zero or less falls
// back to DefaultBatchSize.
func NewChunkIterator(documents storage.DocumentRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{documents: documents, batchSize: batchSize}
}

// Count returns the number of documents and chunks the iterator would visit.
func (it *ChunkIterator) Count(ctx context.Context) (documents, chunks int, err error) {
	ids, err := it.documents.ListDocumentIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("listing documents: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		got, err := it.documents.GetChunks(ctx, id)
		if err != nil {
			return 0, 0, fmt.Errorf("loading chunks of %s: %w", id, err)
		}
		chunks += len(got)
	}
	return len(ids), chunks, nil
}

// ForEach calls fn with batches of at most batchSize chunks. A batch may
// span documents. Iteration stops at the first error from fn or when ctx
// is done; ctx is checked between documents.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids, err := it.documents.ListDocumentIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}

	pending := make([]*core.Chunk, 0, it.batchSize)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunks, err := it.documents.GetChunks(ctx, id)
		if err != nil {
			return fmt.Errorf("loading chunks of %s: %w", id, err)
		}
		pending = append(pending, chunks...)

		for len(pending) >= it.batchSize {
			batch := pending[:it.batchSize:it.batchSize]
			if err := fn(batch); err != nil {
				return err
			}
			pending = pending[it.batchSize:]
		}
	}

	if len(pending) > 0 {
		return fn(pending)
	}
	return nil
}
