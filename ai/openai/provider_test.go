package openai

import (
	"testing"

	"github.com/poiesic/docflow/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewProvider(nil)
		require.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithExtractorModel("")))
		require.ErrorContains(t, err, "ExtractorModel")
	})

	t.Run("separate hosts", func(t *testing.T) {
		cfg := ai.NewConfig(
			ai.WithEmbeddingHost("http://embeddings:8080"),
			ai.WithExtractorHost("http://ner:9100/"),
			ai.WithEmbeddingBatchSize(4),
		)
		provider, err := NewProvider(cfg)
		require.NoError(t, err)
		defer provider.Close()

		assert.Equal(t, "http://embeddings:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://ner:9100/v1", cfg.ExtractorHost)

		embedder, ok := provider.Embedder().(*Embedder)
		require.True(t, ok)
		assert.Equal(t, 4, embedder.batchSize)
		assert.NotNil(t, provider.EntityExtractor())
	})
}
