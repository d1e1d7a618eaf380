package pattern

import "github.com/poiesic/docflow/ai"

// Provider implements ai.AIProvider with the offline services.
type Provider struct {
	embedder  *HashEmbedder
	extractor *EntityExtractor
}

// NewProvider creates an offline provider.
//
// Returns ai.AIProvider interface for consistency with the openai provider.
func NewProvider(dims, minConfidence int) ai.AIProvider {
	return &Provider{
		embedder:  NewHashEmbedder(dims),
		extractor: NewEntityExtractor(minConfidence),
	}
}

// Embedder returns the hashing embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// EntityExtractor returns the pattern extractor.
func (p *Provider) EntityExtractor() ai.EntityExtractor {
	return p.extractor
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
