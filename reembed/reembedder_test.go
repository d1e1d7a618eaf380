package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		ReportInterval: 3,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
	}
}

func TestNewReembedder(t *testing.T) {
	store := setupTestStore(t)

	_, err := NewReembedder(nil, constantEmbedder(), nil, nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)

	_, err = NewReembedder(store.Documents, nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	r, err := NewReembedder(store.Documents, constantEmbedder(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_Run(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 4)
	seedChunks(t, store, "doc-2", 6)

	var buf bytes.Buffer
	embedder := constantEmbedder()
	r, err := NewReembedder(store.Documents, embedder, testConfig(), &buf)
	require.NoError(t, err)

	summary, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Documents)
	assert.Equal(t, 10, summary.Chunks)
	assert.Equal(t, 4, embedder.CallCount(), "10 chunks in batches of 3")

	for _, id := range []string{"doc-1", "doc-2"} {
		chunks, err := store.Documents.GetChunks(ctx, id)
		require.NoError(t, err)
		for _, chunk := range chunks {
			assert.InDelta(t, 1.0, magnitude(chunk.Embedding), 1e-6, "chunk %s", chunk.ID)
		}
	}

	output := buf.String()
	assert.Contains(t, output, "10 chunks across 2 documents")
	assert.Contains(t, output, "10/10")
	assert.Contains(t, output, "Re-embedding complete")
}

func TestReembedder_EmptyStore(t *testing.T) {
	store := setupTestStore(t)

	var buf bytes.Buffer
	embedder := constantEmbedder()
	r, err := NewReembedder(store.Documents, embedder, DefaultConfig(), &buf)
	require.NoError(t, err)

	summary, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Chunks)
	assert.Equal(t, 0, embedder.CallCount())
	assert.Contains(t, buf.String(), "No chunks found")
}

func TestReembedder_ContextCancellation(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 3)
	seedChunks(t, store, "doc-2", 3)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		cancel()
		result := make([][]float32, len(texts))
		for i := range texts {
			result[i] = []float32{1, 0}
		}
		return result, nil
	})
	r, err := NewReembedder(store.Documents, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestReembedder_EmbeddingError(t *testing.T) {
	store := setupTestStore(t)
	seedChunks(t, store, "doc-1", 2)

	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("quota exceeded")
	})
	r, err := NewReembedder(store.Documents, embedder, testConfig(), nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 3, embedder.CallCount())
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 100, config.BatchSize)
	assert.Equal(t, 100, config.ReportInterval)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.RetryDelay)
	assert.Equal(t, 30*time.Second, config.MaxRetryDelay)
}
