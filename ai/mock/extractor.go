package mock

import (
	"context"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

// MockEntityExtractor is a test double for ai.EntityExtractor.
// It allows custom behavior injection via function fields.
type MockEntityExtractor struct {
	// ExtractEntitiesFunc is called by ExtractEntities if set.
	// If nil, runs of capitalized words are reported as PERSON mentions.
	ExtractEntitiesFunc func(ctx context.Context, text, language string) ([]ai.EntityMention, error)

	callCount atomic.Int64
}

// NewMockEntityExtractor creates a mock entity extractor with default behavior.
func NewMockEntityExtractor() *MockEntityExtractor {
	return &MockEntityExtractor{}
}

// WithExtractEntitiesFunc sets ExtractEntitiesFunc and returns the mock for chaining.
func (m *MockEntityExtractor) WithExtractEntitiesFunc(fn func(ctx context.Context, text, language string) ([]ai.EntityMention, error)) *MockEntityExtractor {
	m.ExtractEntitiesFunc = fn
	return m
}

// ExtractEntities returns mentions for runs of two or more capitalized words.
func (m *MockEntityExtractor) ExtractEntities(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
	m.callCount.Add(1)

	if m.ExtractEntitiesFunc != nil {
		return m.ExtractEntitiesFunc(ctx, text, language)
	}

	mentions := []ai.EntityMention{}
	var run []string
	runStart := -1
	flush := func(end int) {
		if len(run) >= 2 {
			mentions = append(mentions, ai.EntityMention{
				Type:       core.EntityPerson,
				Text:       strings.Join(run, " "),
				Confidence: 80,
				Start:      runStart,
				End:        end,
			})
		}
		run = nil
		runStart = -1
	}

	offset := 0
	lastEnd := 0
	for _, word := range strings.Fields(text) {
		start := strings.Index(text[offset:], word) + offset
		offset = start + len(word)
		trimmed := strings.TrimRight(word, ".,;:!?")
		first := []rune(trimmed)
		if len(first) > 0 && unicode.IsUpper(first[0]) {
			if runStart < 0 {
				runStart = start
			}
			run = append(run, trimmed)
			lastEnd = start + len(trimmed)
			if trimmed != word {
				flush(lastEnd)
			}
			continue
		}
		flush(lastEnd)
	}
	flush(lastEnd)

	return mentions, nil
}

// CallCount returns the number of times ExtractEntities was called.
func (m *MockEntityExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockEntityExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractEntitiesFunc = nil
}

// MockCorpusMatcher is a test double for ai.CorpusMatcher.
type MockCorpusMatcher struct {
	// FuzzyFindFunc is called by FuzzyFind if set.
	// If nil, FuzzyFind returns Matches[collection] truncated to topK.
	FuzzyFindFunc func(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error)

	// Matches holds canned results per collection.
	Matches map[string][]core.CorpusMatch

	callCount atomic.Int64
}

// NewMockCorpusMatcher creates a mock matcher with no canned results.
func NewMockCorpusMatcher() *MockCorpusMatcher {
	return &MockCorpusMatcher{Matches: make(map[string][]core.CorpusMatch)}
}

// FuzzyFind returns canned matches.
func (m *MockCorpusMatcher) FuzzyFind(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error) {
	m.callCount.Add(1)

	if m.FuzzyFindFunc != nil {
		return m.FuzzyFindFunc(ctx, query, collection, topK)
	}

	matches := m.Matches[collection]
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return append([]core.CorpusMatch{}, matches...), nil
}

// CallCount returns the number of times FuzzyFind was called.
func (m *MockCorpusMatcher) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count, canned matches and custom functions.
func (m *MockCorpusMatcher) Reset() {
	m.callCount.Store(0)
	m.FuzzyFindFunc = nil
	m.Matches = make(map[string][]core.CorpusMatch)
}
