package enrichment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/mock"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/storage"
	"github.com/poiesic/docflow/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportText = "Maria Lopez fue atendida en el Hospital Central el 3 de mayo de 2024"

func setupTestStore(t *testing.T) *badger.Store {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedDocument stores a single-chunk document and queues it.
func seedDocument(t *testing.T, store *badger.Store, id, text string, priority int) *core.EnrichmentQueueItem {
	ctx := context.Background()
	doc := &core.Document{
		ID:       id,
		Title:    id,
		Text:     text,
		Metadata: core.DocumentMetadata{Language: "es", Type: "document"},
	}
	tokens := strings.Fields(text)
	chunk := &core.Chunk{
		ID:         core.ChunkID(id, 0),
		DocumentID: id,
		Text:       strings.Join(tokens, " "),
		Position:   core.Position{Index: 0, Start: 0, End: len(tokens)},
		TokenCount: len(tokens),
		Embedding:  []float32{0.1, 0.2},
	}
	require.NoError(t, store.Documents.AddDocument(ctx, doc, chunk))

	item, err := store.EnrichmentQueue.Enqueue(ctx, &core.EnrichmentQueueItem{
		DocumentID: id,
		ChunkIDs:   []string{chunk.ID},
		Priority:   priority,
	})
	require.NoError(t, err)
	return item
}

func reportExtractor() *mock.MockEntityExtractor {
	return mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
		func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
			return []ai.EntityMention{
				{Type: core.EntityPerson, Text: "Maria Lopez", Confidence: 92, Start: 0, End: 11},
				{Type: core.EntityOrg, Text: "Hospital Central", Confidence: 88, Start: 31, End: 47},
				{Type: core.EntityDate, Text: "3 de mayo de 2024", Confidence: 95, Start: 51, End: 68},
				{Type: core.EntityPerson, Text: "maria lopez", Confidence: 50, Start: -1, End: -1},
			}, nil
		})
}

func reportMatcher() *mock.MockCorpusMatcher {
	m := mock.NewMockCorpusMatcher()
	m.Matches[CollectionPersons] = []core.CorpusMatch{
		{Record: &core.CorpusRecord{ID: "p-1", Collection: CollectionPersons, Name: "Maria López"}, MatchScore: 0.85},
		{Record: &core.CorpusRecord{ID: "p-2", Collection: CollectionPersons, Name: "Mario Lopes"}, MatchScore: 0.55},
		{Record: &core.CorpusRecord{ID: "p-3", Collection: CollectionPersons, Name: "Maria Lopez"}, MatchScore: 0.4},
	}
	m.Matches[CollectionFacilities] = []core.CorpusMatch{
		{Record: &core.CorpusRecord{ID: "f-1", Collection: CollectionFacilities, Name: "Hospital Central"}, MatchScore: 1.0},
	}
	return m
}

func setupTestEngine(t *testing.T, store *badger.Store, extractor ai.EntityExtractor, matcher ai.CorpusMatcher, opts ...Option) *Engine {
	opts = append([]Option{WithLogRepository(store.Logs), WithEnrichmentWriter(store)}, opts...)
	engine, err := NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher, opts...)
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	store := setupTestStore(t)
	extractor := mock.NewMockEntityExtractor()
	matcher := mock.NewMockCorpusMatcher()

	t.Run("valid engine", func(t *testing.T) {
		engine, err := NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher)
		require.NoError(t, err)
		assert.Equal(t, 75, engine.confidenceThreshold)
		assert.IsType(t, repositoryWriter{}, engine.writer)
		assert.Equal(t, 0.5, engine.fuzzyThreshold)
		assert.Equal(t, 5, engine.topK)
		assert.Equal(t, core.ReenrichAppend, engine.policy)
	})

	tests := []struct {
		name string
		make func() (*Engine, error)
		want error
	}{
		{"nil documents", func() (*Engine, error) {
			return NewEngine(nil, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher)
		}, ErrDocumentRepositoryRequired},
		{"nil queue", func() (*Engine, error) {
			return NewEngine(store.Documents, nil, store.Entities, store.CrossReferences, extractor, matcher)
		}, ErrQueueRepositoryRequired},
		{"nil entities", func() (*Engine, error) {
			return NewEngine(store.Documents, store.EnrichmentQueue, nil, store.CrossReferences, extractor, matcher)
		}, ErrEntityRepositoryRequired},
		{"nil cross-references", func() (*Engine, error) {
			return NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, nil, extractor, matcher)
		}, ErrCrossReferenceRepositoryRequired},
		{"nil extractor", func() (*Engine, error) {
			return NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, nil, matcher)
		}, ErrExtractorRequired},
		{"nil matcher", func() (*Engine, error) {
			return NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, nil)
		}, ErrMatcherRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.make()
			assert.Equal(t, tt.want, err)
		})
	}

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher, WithConfidenceThreshold(101))
		assert.Error(t, err)
		_, err = NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher, WithFuzzyThreshold(1.5))
		assert.Error(t, err)
		_, err = NewEngine(store.Documents, store.EnrichmentQueue, store.Entities, store.CrossReferences, extractor, matcher, WithReenrichPolicy("replace"))
		assert.Error(t, err)
	})
}

func TestEngine_Enrich(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	seedDocument(t, store, "doc-1", reportText, 0)

	var gotLanguage, gotText string
	extractor := reportExtractor()
	inner := extractor.ExtractEntitiesFunc
	extractor.ExtractEntitiesFunc = func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
		gotText, gotLanguage = text, language
		return inner(ctx, text, language)
	}
	engine := setupTestEngine(t, store, extractor, reportMatcher())

	result, err := engine.Enrich(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", result.DocumentID)
	assert.Equal(t, 3, result.EntitiesExtracted, "duplicate mention collapsed")
	assert.Equal(t, 2, result.CrossReferencesCreated)
	assert.False(t, result.Skipped)
	assert.Equal(t, "es", gotLanguage)
	assert.Equal(t, reportText, gotText)

	entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, entities, 3)

	refs, err := store.CrossReferences.GetCrossReferencesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	byTarget := map[string]*core.CrossReference{}
	for _, r := range refs {
		byTarget[r.TargetID] = r
	}
	person := byTarget["p-1"]
	require.NotNil(t, person)
	assert.Equal(t, 87, person.Confidence)
	assert.Equal(t, "Maria Lopez", person.SourceEntity)
	assert.Equal(t, core.EntityPerson, person.SourceEntityType)
	assert.Equal(t, "persons", person.TargetCollection)
	assert.Equal(t, "Maria López", person.TargetName)
	assert.Equal(t, "mentions-named-actor", person.RelationshipType)
	assert.Equal(t, "fuzzy-levenshtein", person.MatchMethod)

	facility := byTarget["f-1"]
	require.NotNil(t, facility)
	assert.Equal(t, 100, facility.Confidence)
	assert.Equal(t, "mentions-location", facility.RelationshipType)

	assert.NotContains(t, byTarget, "p-2", "below confidence threshold")
	assert.NotContains(t, byTarget, "p-3", "below fuzzy threshold")

	doc, err := store.Documents.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.NotNil(t, doc.Metadata.Enrichment)
	assert.Equal(t, 3, doc.Metadata.Enrichment.EntitiesExtracted)
	assert.Equal(t, 2, doc.Metadata.Enrichment.CrossReferencesCreated)
	assert.Equal(t, 1, doc.Metadata.Enrichment.Runs)

	logs, err := store.Logs.EnrichmentLogsSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, core.LogStatusSuccess, logs[0].Status)
	assert.InDelta(t, 93.5, logs[0].AvgCrossRefConfidence, 1e-9)
	assert.InDelta(t, (92.0+88+95)/3, logs[0].AvgEntityConfidence, 1e-9)
}

func TestEngine_Enrich_ThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	// The accent variant scores exactly 87.
	tests := []struct {
		threshold int
		want      int
	}{
		{86, 1},
		{87, 1},
		{88, 0},
	}
	for _, tt := range tests {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)

		extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
			func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
				return []ai.EntityMention{{Type: core.EntityPerson, Text: "Maria Lopez", Confidence: 90}}, nil
			})
		matcher := mock.NewMockCorpusMatcher()
		matcher.Matches[CollectionPersons] = []core.CorpusMatch{
			{Record: &core.CorpusRecord{ID: "p-1", Name: "Maria López"}, MatchScore: 0.85},
		}
		engine := setupTestEngine(t, store, extractor, matcher, WithConfidenceThreshold(tt.threshold))

		result, err := engine.Enrich(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.CrossReferencesCreated, "threshold %d", tt.threshold)
	}
}

func TestEngine_Enrich_TopK(t *testing.T) {
	store := setupTestStore(t)
	seedDocument(t, store, "doc-1", reportText, 0)

	var gotTopK []int
	var mu sync.Mutex
	matcher := mock.NewMockCorpusMatcher()
	matcher.FuzzyFindFunc = func(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error) {
		mu.Lock()
		defer mu.Unlock()
		gotTopK = append(gotTopK, topK)
		return nil, nil
	}
	engine := setupTestEngine(t, store, reportExtractor(), matcher, WithTopK(3))

	_, err := engine.Enrich(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, gotTopK, "only PERSON and ORG are looked up")
}

func TestEngine_Enrich_ReenrichPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("append", func(t *testing.T) {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)
		engine := setupTestEngine(t, store, reportExtractor(), reportMatcher())

		_, err := engine.Enrich(ctx, "doc-1")
		require.NoError(t, err)
		_, err = engine.Enrich(ctx, "doc-1")
		require.NoError(t, err)

		entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Len(t, entities, 6)

		doc, err := store.Documents.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Equal(t, 2, doc.Metadata.Enrichment.Runs)
	})

	t.Run("skip", func(t *testing.T) {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)
		extractor := reportExtractor()
		engine := setupTestEngine(t, store, extractor, reportMatcher(), WithReenrichPolicy(core.ReenrichSkip))

		_, err := engine.Enrich(ctx, "doc-1")
		require.NoError(t, err)
		result, err := engine.Enrich(ctx, "doc-1")
		require.NoError(t, err)
		assert.True(t, result.Skipped)
		assert.Equal(t, 1, extractor.CallCount())

		entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Len(t, entities, 3)

		logs, err := store.Logs.EnrichmentLogsSince(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, logs, 2)
		assert.Equal(t, core.LogStatusSkipped, logs[1].Status)
	})
}

func TestEngine_Enrich_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		store := setupTestStore(t)
		engine := setupTestEngine(t, store, reportExtractor(), reportMatcher())

		_, err := engine.Enrich(ctx, "nope")
		assert.ErrorIs(t, err, core.ErrEnrichmentFailure)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		logs, err := store.Logs.EnrichmentLogsSince(ctx, time.Now().Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, core.LogStatusFailed, logs[0].Status)
	})

	t.Run("extractor error stores nothing", func(t *testing.T) {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)
		extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
			func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
				return nil, errors.New("model unavailable")
			})
		engine := setupTestEngine(t, store, extractor, reportMatcher())

		_, err := engine.Enrich(ctx, "doc-1")
		assert.ErrorIs(t, err, core.ErrEnrichmentFailure)
		assert.Contains(t, err.Error(), "model unavailable")

		doc, err := store.Documents.GetDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Nil(t, doc.Metadata.Enrichment)
	})

	t.Run("matcher error", func(t *testing.T) {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)
		matcher := mock.NewMockCorpusMatcher()
		matcher.FuzzyFindFunc = func(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error) {
			return nil, errors.New("corpus offline")
		}
		engine := setupTestEngine(t, store, reportExtractor(), matcher)

		_, err := engine.Enrich(ctx, "doc-1")
		assert.ErrorIs(t, err, core.ErrEnrichmentFailure)

		entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
		require.NoError(t, err)
		assert.Empty(t, entities)
	})

	t.Run("call timeout", func(t *testing.T) {
		store := setupTestStore(t)
		seedDocument(t, store, "doc-1", reportText, 0)
		extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
			func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			})
		engine := setupTestEngine(t, store, extractor, reportMatcher(), WithCallTimeout(10*time.Millisecond))

		_, err := engine.Enrich(ctx, "doc-1")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestEngine_WithLogger(t *testing.T) {
	store := setupTestStore(t)
	engine := setupTestEngine(t, store, reportExtractor(), reportMatcher(), WithLogger(slog.Default()), WithBus(nil))
	assert.NotNil(t, engine.logger)
	assert.Equal(t, events.Nop{}, engine.bus)
}

func TestEngine_Enrich_ClampsEntityConfidence(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	seedDocument(t, store, "doc-1", reportText, 0)
	extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
		func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
			return []ai.EntityMention{
				{Type: core.EntityPerson, Text: "Maria Lopez", Confidence: 150, Start: 0, End: 11},
				{Type: core.EntityDate, Text: "3 de mayo de 2024", Confidence: -20, Start: 51, End: 68},
			}, nil
		})
	engine := setupTestEngine(t, store, extractor, mock.NewMockCorpusMatcher())

	_, err := engine.Enrich(ctx, "doc-1")
	require.NoError(t, err)

	entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, entities, 2)
	byText := map[string]int{}
	for _, e := range entities {
		byText[e.Text] = e.Confidence
	}
	assert.Equal(t, 100, byText["Maria Lopez"])
	assert.Equal(t, 0, byText["3 de mayo de 2024"])

	logs, err := store.Logs.EnrichmentLogsSince(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.InDelta(t, 50.0, logs[0].AvgEntityConfidence, 1e-9)
}

func TestEngine_Enrich_FailedWriteLeavesNothing(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	seedDocument(t, store, "doc-1", reportText, 0)

	// The document disappears while the model is still working.
	extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
		func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
			require.NoError(t, store.Documents.DeleteDocument(ctx, "doc-1"))
			return reportExtractor().ExtractEntitiesFunc(ctx, text, language)
		})
	engine := setupTestEngine(t, store, extractor, reportMatcher())

	_, err := engine.Enrich(ctx, "doc-1")
	assert.ErrorIs(t, err, core.ErrEnrichmentFailure)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entities, err := store.Entities.GetEntitiesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, entities)
	refs, err := store.CrossReferences.GetCrossReferencesByDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, refs)
}
