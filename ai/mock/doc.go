// Package mock provides deterministic stand-ins for the ai interfaces so the
// pipeline can be tested offline.
//
// Every mock counts its calls and accepts an override function:
//
//	extractor := mock.NewMockEntityExtractor().WithExtractEntitiesFunc(
//	    func(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
//	        return []ai.EntityMention{{Type: core.EntityPerson, Text: "Ana Ruiz", Confidence: 90}}, nil
//	    })
//	provider := mock.NewMockProviderWithServices(nil, extractor)
//
// Without overrides MockEmbedder hashes text into a fixed-width vector,
// MockEntityExtractor reports capitalized word runs as PERSON mentions and
// MockCorpusMatcher answers from its Matches map.
package mock
