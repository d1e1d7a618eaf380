package pattern

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = "El inspector Juan Pérez visitó el Hospital Central el 3 de mayo de 2024. " +
	"Más tarde, María López llamó a Transportes Norte S.A."

func TestExtractEntities(t *testing.T) {
	extractor := NewEntityExtractor(0)

	mentions, err := extractor.ExtractEntities(context.Background(), report, "es")
	require.NoError(t, err)

	type got struct {
		Type core.EntityType
		Text string
	}
	var results []got
	for _, m := range mentions {
		results = append(results, got{m.Type, m.Text})
		assert.Equal(t, m.Text, report[m.Start:m.End], "offsets point at the mention")
		assert.Contains(t, m.Context, m.Text)
	}

	assert.Equal(t, []got{
		{core.EntityPerson, "Juan Pérez"},
		{core.EntityOrg, "Hospital Central"},
		{core.EntityDate, "3 de mayo de 2024"},
		{core.EntityPerson, "María López"},
		{core.EntityOrg, "Transportes Norte S.A."},
	}, results)
}

func TestExtractEntities_MinConfidence(t *testing.T) {
	extractor := NewEntityExtractor(70)

	mentions, err := extractor.ExtractEntities(context.Background(), report, "es")
	require.NoError(t, err)

	for _, m := range mentions {
		assert.GreaterOrEqual(t, m.Confidence, 70)
		assert.NotEqual(t, "María López", m.Text, "bare name runs fall below 70")
	}
	assert.Len(t, mentions, 4)
}

func TestExtractEntities_NoEntities(t *testing.T) {
	extractor := NewEntityExtractor(0)

	mentions, err := extractor.ExtractEntities(context.Background(), "sin nombres propios aquí", "es")
	require.NoError(t, err)
	assert.NotNil(t, mentions)
	assert.Empty(t, mentions)
}

func TestExtractEntities_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEntityExtractor(0).ExtractEntities(ctx, report, "es")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashEmbedder(t *testing.T) {
	embedder := NewHashEmbedder(64)
	assert.Equal(t, 64, embedder.Dimensions())
	assert.Equal(t, DefaultDimensions, NewHashEmbedder(0).Dimensions())

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"Hospital Central", "hospital, central!", "otro texto"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Equal(t, vectors[0], vectors[1], "case and punctuation are ignored")
	assert.NotEqual(t, vectors[0], vectors[2])

	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	empty, err := embedder.EmbedText(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, empty, 64)
}

func TestProvider(t *testing.T) {
	provider := NewProvider(32, 50)

	vector, err := provider.Embedder().EmbedText(context.Background(), "hola")
	require.NoError(t, err)
	assert.Len(t, vector, 32)

	mentions, err := provider.EntityExtractor().ExtractEntities(context.Background(), report, "es")
	require.NoError(t, err)
	assert.NotEmpty(t, mentions)
	assert.NoError(t, provider.Close())
}
