package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *badger.Store {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedChunks stores a document with n chunks whose embeddings are all zero.
func seedChunks(t *testing.T, store *badger.Store, docID string, n int) []*core.Chunk {
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			ID:         core.ChunkID(docID, i),
			DocumentID: docID,
			Text:       fmt.Sprintf("%s parte %d", docID, i),
			Position:   core.Position{Index: i, Start: i * 10, End: i*10 + 10},
			TokenCount: 10,
			Embedding:  []float32{0, 0, 0},
		}
	}
	doc := &core.Document{
		ID:       docID,
		Title:    docID,
		Text:     docID,
		Metadata: core.DocumentMetadata{Language: "es", Type: "document"},
	}
	require.NoError(t, store.Documents.AddDocument(context.Background(), doc, chunks...))
	return chunks
}

func TestChunkIterator_Basic(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-a", 2)
	seedChunks(t, store, "doc-b", 3)

	var sizes []int
	var ids []string
	iter := NewChunkIterator(store.Documents, 2)
	err := iter.ForEach(context.Background(), func(chunks []*core.Chunk) error {
		sizes = append(sizes, len(chunks))
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, sizes, "batches may span documents")
	assert.Equal(t, []string{
		"doc-a_chunk_0", "doc-a_chunk_1",
		"doc-b_chunk_0", "doc-b_chunk_1", "doc-b_chunk_2",
	}, ids)
}

func TestChunkIterator_BatchSizes(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		want      []int
	}{
		{"one per batch", 1, []int{1, 1, 1, 1, 1, 1, 1}},
		{"exact fit", 7, []int{7}},
		{"larger than total", 50, []int{7}},
		{"uneven", 3, []int{3, 3, 1}},
	}

	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 4)
	seedChunks(t, store, "doc-2", 3)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sizes []int
			err := NewChunkIterator(store.Documents, tt.batchSize).ForEach(context.Background(),
				func(chunks []*core.Chunk) error {
					sizes = append(sizes, len(chunks))
					return nil
				})
			require.NoError(t, err)
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestChunkIterator_Count(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 4)
	seedChunks(t, store, "doc-2", 3)

	documents, chunks, err := NewChunkIterator(store.Documents, 10).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, documents)
	assert.Equal(t, 7, chunks)
}

func TestChunkIterator_EmptyStore(t *testing.T) {
	store := setupTestStore(t)

	called := false
	err := NewChunkIterator(store.Documents, 10).ForEach(context.Background(), func([]*core.Chunk) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestChunkIterator_ErrorHandling(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 5)

	boom := errors.New("boom")
	calls := 0
	err := NewChunkIterator(store.Documents, 2).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls, "iteration stops at the first error")
}

func TestChunkIterator_ContextCancellation(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 2)
	seedChunks(t, store, "doc-2", 2)
	seedChunks(t, store, "doc-3", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := NewChunkIterator(store.Documents, 2).ForEach(ctx, func([]*core.Chunk) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestChunkIterator_InvalidBatchSize(t *testing.T) {
	store := setupTestStore(t)
	assert.Equal(t, DefaultBatchSize, NewChunkIterator(store.Documents, 0).batchSize)
	assert.Equal(t, DefaultBatchSize, NewChunkIterator(store.Documents, -5).batchSize)
}
