package docflow

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/enrichment"
	"github.com/poiesic/docflow/reembed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleReport = "El inspector Carlos Romero visitó el Hospital San Juan el 3 de marzo de 2024."

func testConfig(t *testing.T) *config.Config {
	cfg, err := config.New(
		config.WithProvider(config.ProviderPattern),
		config.WithStoragePath(filepath.Join(t.TempDir(), "docflow.db")),
		config.WithBatchSize(4),
	)
	require.NoError(t, err)
	cfg.EmbeddingDimensions = 32
	return cfg
}

func openTestSystem(t *testing.T, opts ...Option) *System {
	opts = append([]Option{WithInMemoryStorage(), WithSampler(nil)}, opts...)
	sys, err := Open(testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return sys
}

func seedCorpus(t *testing.T, sys *System) {
	_, err := sys.Store().Corpus.AddRecords(context.Background(),
		&core.CorpusRecord{Collection: enrichment.CollectionPersons, Name: "Carlos Romero"},
		&core.CorpusRecord{Collection: enrichment.CollectionFacilities, Name: "Hospital San Juan"},
	)
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("in memory", func(t *testing.T) {
		sys := openTestSystem(t)
		assert.NotNil(t, sys.Store())
		assert.NotNil(t, sys.Provider())
		assert.NotNil(t, sys.Ingestion())
		assert.NotNil(t, sys.Enrichment())
		assert.NotNil(t, sys.Worker())
		assert.NotNil(t, sys.Monitor())
		assert.NotNil(t, sys.Reporter())
		assert.Equal(t, config.ProviderPattern, sys.Config().Provider)
	})

	t.Run("on disk", func(t *testing.T) {
		cfg := testConfig(t)
		sys, err := Open(cfg, WithSampler(nil))
		require.NoError(t, err)
		require.NoError(t, sys.Close())
		assert.DirExists(t, cfg.StoragePath)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ChunkOverlap = cfg.ChunkSize
		_, err := Open(cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("storage path is a file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.StoragePath, []byte("x"), 0o644))
		sys, err := Open(cfg)
		assert.Error(t, err)
		assert.Nil(t, sys)
	})

	t.Run("injected provider", func(t *testing.T) {
		provider := mock.NewMockProvider()
		sys := openTestSystem(t, WithProvider(provider))
		assert.Same(t, provider, sys.Provider())
	})
}

func TestNewProvider(t *testing.T) {
	cfg := testConfig(t)
	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	vector, err := provider.Embedder().EmbedText(context.Background(), "hola")
	require.NoError(t, err)
	assert.Len(t, vector, 32)

	t.Run("rate limited", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.RateLimit = 100
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		defer provider.Close()
		_, err = provider.Embedder().EmbedText(context.Background(), "hola")
		require.NoError(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Provider = "carrier-pigeon"
		_, err := NewProvider(cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestSystem_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sys := openTestSystem(t)
	seedCorpus(t, sys)

	result, err := sys.Ingestion().Ingest(ctx, core.DocumentInput{ID: "informe-1", Text: sampleReport})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ChunksCreated)

	queued, err := sys.Store().EnrichmentQueue.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	qr, err := sys.Enrichment().ProcessQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, qr.Successful)
	assert.Equal(t, 3, qr.EntitiesExtracted, "person, facility and date")
	assert.Equal(t, 2, qr.CrossReferencesCreated)

	refs, err := sys.Store().CrossReferences.GetCrossReferencesByDocument(ctx, "informe-1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.Equal(t, 100, ref.Confidence)
	}

	snapshot, _, err := sys.Monitor().CollectMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Ingestion.DocumentsProcessed)
	assert.Equal(t, 1, snapshot.Enrichment.DocumentsEnriched)
	assert.Equal(t, 2, snapshot.Enrichment.CrossReferencesCreated)
	assert.Equal(t, 4, snapshot.System.PoolSize)

	t.Run("reembed", func(t *testing.T) {
		var buf bytes.Buffer
		r, err := sys.NewReembedder(&reembed.Config{BatchSize: 10, ReportInterval: 10, MaxRetries: 1}, &buf)
		require.NoError(t, err)
		summary, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Chunks)
	})
}

func TestSystem_Run(t *testing.T) {
	sys := openTestSystem(t)
	seedCorpus(t, sys)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sys.Run(ctx) }()

	_, err := sys.Ingestion().Ingest(ctx, core.DocumentInput{ID: "informe-2", Text: sampleReport})
	require.NoError(t, err)

	// The ingested message wakes the worker.
	require.Eventually(t, func() bool {
		doc, err := sys.Store().Documents.GetDocument(context.Background(), "informe-2")
		return err == nil && doc.Metadata.Enrichment != nil
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, sys.Reporter().Summary().Enrichment.Successful)
}

func TestSystem_Close(t *testing.T) {
	provider := mock.NewMockProvider()
	sys, err := Open(testConfig(t), WithInMemoryStorage(), WithSampler(nil), WithProvider(provider))
	require.NoError(t, err)

	// Close stops components that were never started.
	require.NoError(t, sys.Close())
	assert.True(t, provider.Closed())
}
