package mock

import (
	"sync/atomic"

	"github.com/poiesic/docflow/ai"
)

// MockProvider hands out a MockEmbedder and a MockEntityExtractor and
// remembers whether it was closed.
type MockProvider struct {
	Embedding  *MockEmbedder
	Extraction *MockEntityExtractor

	closed atomic.Bool
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider with default mocks.
func NewMockProvider() *MockProvider {
	return NewMockProviderWithServices(NewMockEmbedder(), NewMockEntityExtractor())
}

// NewMockProviderWithServices uses the given mocks. Nil arguments get defaults.
func NewMockProviderWithServices(embedder *MockEmbedder, extractor *MockEntityExtractor) *MockProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	if extractor == nil {
		extractor = NewMockEntityExtractor()
	}
	return &MockProvider{Embedding: embedder, Extraction: extractor}
}

func (p *MockProvider) Embedder() ai.Embedder { return p.Embedding }
func (p *MockProvider) EntityExtractor() ai.EntityExtractor { return p.Extraction }

func (p *MockProvider) Close() error {
	p.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (p *MockProvider) Closed() bool {
	return p.closed.Load()
}
