package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingQueue rejects every Enqueue call.
type failingQueue struct {
	storage.EnrichmentQueueRepository
}

func (q *failingQueue) Enqueue(ctx context.Context, item *core.EnrichmentQueueItem) (*core.EnrichmentQueueItem, error) {
	return nil, errors.New("queue unavailable")
}

func setupTestStore(t *testing.T) *badger.Store {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func setupTestEngine(t *testing.T, store *badger.Store, embedder *mock.MockEmbedder, opts ...Option) *Engine {
	opts = append([]Option{WithLogRepository(store.Logs)}, opts...)
	engine, err := NewEngine(store.Documents, store.EnrichmentQueue, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(engine.Release)
	return engine
}

// failOnMarker makes EmbedTexts fail for any document containing marker.
func failOnMarker(marker string) func(ctx context.Context, texts []string) ([][]float32, error) {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.Contains(text, marker) {
				return nil, errors.New("embedding service unavailable")
			}
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{0.1, 0.2, 0.3}
		}
		return out, nil
	}
}

func TestNewEngine(t *testing.T) {
	store := setupTestStore(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid engine", func(t *testing.T) {
		engine, err := NewEngine(store.Documents, store.EnrichmentQueue, embedder)
		require.NoError(t, err)
		defer engine.Release()

		assert.Equal(t, defaultBatchSize, engine.Cap())
		assert.Equal(t, 0, engine.Running())
		assert.Equal(t, defaultLanguage, engine.defaultLanguage)
	})

	t.Run("nil document repository", func(t *testing.T) {
		_, err := NewEngine(nil, store.EnrichmentQueue, embedder)
		assert.Equal(t, ErrDocumentRepositoryRequired, err)
	})

	t.Run("nil queue repository", func(t *testing.T) {
		_, err := NewEngine(store.Documents, nil, embedder)
		assert.Equal(t, ErrQueueRepositoryRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewEngine(store.Documents, store.EnrichmentQueue, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid chunking", func(t *testing.T) {
		_, err := NewEngine(store.Documents, store.EnrichmentQueue, embedder, WithChunking(100, 100))
		assert.ErrorIs(t, err, core.ErrInvalidChunking)
	})
}

func TestEngine_WithOptions(t *testing.T) {
	store := setupTestStore(t)
	embedder := mock.NewMockEmbedder()

	t.Run("batch size sets pool capacity", func(t *testing.T) {
		engine := setupTestEngine(t, store, embedder, WithBatchSize(4))
		assert.Equal(t, 4, engine.Cap())
	})

	t.Run("batch size zero defaults to 1", func(t *testing.T) {
		engine := setupTestEngine(t, store, embedder, WithBatchSize(0))
		assert.Equal(t, 1, engine.Cap())
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		engine := setupTestEngine(t, store, embedder, WithLogger(nil))
		assert.NotNil(t, engine.logger)
	})

	t.Run("with multiple options", func(t *testing.T) {
		engine := setupTestEngine(t, store, embedder,
			WithChunking(10, 2),
			WithDefaultLanguage("en"),
			WithCallTimeout(time.Second),
			WithLogger(slog.Default()),
		)
		assert.Equal(t, "en", engine.defaultLanguage)
		assert.Equal(t, time.Second, engine.embedding.timeout)
		assert.Equal(t, 10, engine.chunker.size)
		assert.Equal(t, 2, engine.chunker.overlap)
	})
}

func TestEngine_Ingest(t *testing.T) {
	ctx := context.Background()

	t.Run("stores document, chunks and queue item", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder()
		engine := setupTestEngine(t, store, embedder)

		result, err := engine.Ingest(ctx, core.DocumentInput{
			ID:       "doc-1",
			Title:    "Informe",
			Text:     makeTokens(1400),
			Source:   "upload",
			Metadata: map[string]string{"author": "Ana Ruiz", "case": "42"},
		})
		require.NoError(t, err)
		assert.Equal(t, "doc-1", result.DocumentID)
		assert.Equal(t, 3, result.ChunksCreated)
		assert.Equal(t, 1, embedder.CallCount(), "one embedding call per document")

		doc, err := store.Documents.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, "Informe", doc.Title)
		assert.Equal(t, "document", doc.Metadata.Type)
		assert.Equal(t, "es", doc.Metadata.Language)
		assert.Equal(t, "Ana Ruiz", doc.Metadata.Author)
		assert.Equal(t, "42", doc.Metadata.Extra["case"])
		assert.Nil(t, doc.Metadata.Enrichment)

		chunks, err := store.Documents.GetChunks(ctx, "doc-1")
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		for i, chunk := range chunks {
			assert.Equal(t, fmt.Sprintf("doc-1_chunk_%d", i), chunk.ID)
			assert.Equal(t, i, chunk.Position.Index)
			assert.Len(t, chunk.Embedding, mock.DefaultDimensions)
			assert.Equal(t, "upload", chunk.Metadata.Source)
		}

		pending, err := store.EnrichmentQueue.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "doc-1", pending[0].DocumentID)
		assert.Equal(t, []string{"doc-1_chunk_0", "doc-1_chunk_1", "doc-1_chunk_2"}, pending[0].ChunkIDs)

		logs, err := store.Logs.IngestionLogsSince(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, core.LogStatusSuccess, logs[0].Status)
		assert.Equal(t, 3, logs[0].ChunksCreated)
	})

	t.Run("generates ID and defaults", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, mock.NewMockEmbedder(), WithDefaultLanguage("pt"))

		result, err := engine.Ingest(ctx, core.DocumentInput{Text: "Relatório curto"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(result.DocumentID, "doc_"))

		doc, err := store.Documents.GetDocument(ctx, result.DocumentID)
		require.NoError(t, err)
		assert.Equal(t, "Untitled Document", doc.Title)
		assert.Equal(t, "pt", doc.Metadata.Language)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder()
		engine := setupTestEngine(t, store, embedder)

		_, err := engine.Ingest(ctx, core.DocumentInput{ID: "empty", Text: "   "})
		assert.ErrorIs(t, err, core.ErrIngestionFailure)
		assert.ErrorIs(t, err, core.ErrEmptyText)
		assert.Equal(t, 0, embedder.CallCount())

		logs, err := store.Logs.IngestionLogsSince(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, core.LogStatusFailed, logs[0].Status)
	})

	t.Run("embedding failure stores nothing", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(failOnMarker("t0"))
		engine := setupTestEngine(t, store, embedder)

		_, err := engine.Ingest(ctx, core.DocumentInput{ID: "doc-x", Text: makeTokens(800)})
		assert.ErrorIs(t, err, core.ErrIngestionFailure)

		_, err = store.Documents.GetDocument(ctx, "doc-x")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		chunks, err := store.Documents.GetChunks(ctx, "doc-x")
		require.NoError(t, err)
		assert.Empty(t, chunks)

		depth, err := store.EnrichmentQueue.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, depth)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 2}}, nil
		})
		engine := setupTestEngine(t, store, embedder)

		_, err := engine.Ingest(ctx, core.DocumentInput{Text: makeTokens(1400)})
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	})

	t.Run("vector width mismatch", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, mock.NewMockEmbedder(), WithEmbeddingDimensions(16))

		_, err := engine.Ingest(ctx, core.DocumentInput{Text: "hola mundo"})
		assert.ErrorIs(t, err, ErrEmbeddingMismatch)
	})

	t.Run("call timeout", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		engine := setupTestEngine(t, store, embedder, WithCallTimeout(10*time.Millisecond))

		_, err := engine.Ingest(ctx, core.DocumentInput{Text: "hola mundo"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("duplicate ID is rejected", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, mock.NewMockEmbedder())

		_, err := engine.Ingest(ctx, core.DocumentInput{ID: "dup", Text: "uno"})
		require.NoError(t, err)
		_, err = engine.Ingest(ctx, core.DocumentInput{ID: "dup", Text: "dos"})
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("enqueue failure removes the document", func(t *testing.T) {
		store := setupTestStore(t)
		engine, err := NewEngine(store.Documents, &failingQueue{store.EnrichmentQueue}, mock.NewMockEmbedder())
		require.NoError(t, err)
		defer engine.Release()

		_, err = engine.Ingest(ctx, core.DocumentInput{ID: "orphan", Text: "texto de prueba"})
		assert.ErrorIs(t, err, core.ErrIngestionFailure)

		_, err = store.Documents.GetDocument(ctx, "orphan")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("publishes events", func(t *testing.T) {
		store := setupTestStore(t)
		bus := events.NewMemoryBus(nil)
		defer bus.Close()
		ch, cancel := bus.Subscribe(4, events.TopicDocumentIngested, events.TopicEnrichmentQueued)
		defer cancel()

		engine := setupTestEngine(t, store, mock.NewMockEmbedder(), WithBus(bus))
		_, err := engine.Ingest(ctx, core.DocumentInput{ID: "evt", Text: "texto"})
		require.NoError(t, err)

		first := <-ch
		second := <-ch
		assert.Equal(t, events.TopicDocumentIngested, first.Topic)
		assert.Equal(t, "evt", first.DocumentID)
		assert.Equal(t, events.TopicEnrichmentQueued, second.Topic)
		assert.NotZero(t, second.ItemID)
	})
}

func TestEngine_IngestBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("one failure does not affect the others", func(t *testing.T) {
		store := setupTestStore(t)
		embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(failOnMarker("BROKEN"))
		engine := setupTestEngine(t, store, embedder, WithBatchSize(2))

		inputs := make([]core.DocumentInput, 5)
		for i := range inputs {
			inputs[i] = core.DocumentInput{ID: fmt.Sprintf("doc-%d", i), Text: fmt.Sprintf("documento número %d", i)}
		}
		inputs[3].Text = "documento BROKEN"

		result, err := engine.IngestBatch(ctx, inputs)
		require.NoError(t, err)
		assert.Equal(t, 5, result.Total)
		assert.Equal(t, 4, result.Successful)
		assert.Equal(t, 1, result.Failed)

		require.Len(t, result.Results, 5)
		for i, r := range result.Results {
			assert.Equal(t, i, r.Index)
			assert.Equal(t, fmt.Sprintf("doc-%d", i), r.DocumentID)
			if i == 3 {
				assert.ErrorIs(t, r.Err, core.ErrIngestionFailure)
			} else {
				assert.NoError(t, r.Err)
				assert.Equal(t, 1, r.ChunksCreated)
			}
		}

		_, err = store.Documents.GetDocument(ctx, "doc-3")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		depth, err := store.EnrichmentQueue.CountPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, depth)
	})

	t.Run("reports progress per batch", func(t *testing.T) {
		store := setupTestStore(t)
		var mu sync.Mutex
		var progress []int
		engine := setupTestEngine(t, store, mock.NewMockEmbedder(),
			WithBatchSize(2),
			WithProgressFunc(func(processed, total int) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, 5, total)
				progress = append(progress, processed)
			}),
		)

		inputs := make([]core.DocumentInput, 5)
		for i := range inputs {
			inputs[i] = core.DocumentInput{Text: fmt.Sprintf("texto %d", i)}
		}
		_, err := engine.IngestBatch(ctx, inputs)
		require.NoError(t, err)
		assert.Equal(t, []int{2, 4, 5}, progress)
	})

	t.Run("empty batch", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, mock.NewMockEmbedder())

		result, err := engine.IngestBatch(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Total)
		assert.Equal(t, 0, result.Successful)
	})

	t.Run("canceled context fails remaining inputs", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, mock.NewMockEmbedder())

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		result, err := engine.IngestBatch(canceled, []core.DocumentInput{{Text: "a"}, {Text: "b"}})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, result.Failed)
		assert.Equal(t, 0, result.Successful)
	})
}

func TestEngine_Release(t *testing.T) {
	store := setupTestStore(t)
	engine, err := NewEngine(store.Documents, store.EnrichmentQueue, mock.NewMockEmbedder())
	require.NoError(t, err)

	// Release should not panic
	engine.Release()

	// Multiple releases should not panic
	engine.Release()
}

func TestEngine_Running(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	const batch = 3
	var (
		engine  *Engine
		arrived sync.WaitGroup
		mu      sync.Mutex
		seen    []int
	)
	arrived.Add(batch)
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		arrived.Done()
		arrived.Wait()
		mu.Lock()
		seen = append(seen, engine.Running())
		mu.Unlock()
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{0.1, 0.2, 0.3}
		}
		return out, nil
	})
	engine = setupTestEngine(t, store, embedder, WithBatchSize(batch))

	inputs := make([]core.DocumentInput, batch)
	for i := range inputs {
		inputs[i] = core.DocumentInput{Text: fmt.Sprintf("texto %d", i)}
	}
	result, err := engine.IngestBatch(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, batch, result.Successful)

	require.Len(t, seen, batch)
	for _, running := range seen {
		assert.GreaterOrEqual(t, running, 1)
		assert.LessOrEqual(t, running, batch)
	}
	assert.Equal(t, batch, seen[0])

	// Pool workers stay alive after the batch but are not busy.
	assert.Equal(t, 0, engine.Running())
	assert.Equal(t, batch, engine.Cap())
}
