// Package ratelimit throttles calls to AI services with a token bucket.
//
// The decorators wrap any ai.Embedder or ai.EntityExtractor and block in
// Wait(ctx) before delegating, so a cancelled context releases callers that
// are queued for a token.
package ratelimit

import (
	"context"

	"github.com/poiesic/docflow/ai"
	"golang.org/x/time/rate"
)

// Config holds the token bucket parameters.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero or less disables throttling.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// NewLimiter builds a limiter from cfg. It returns nil when throttling is disabled.
func NewLimiter(cfg Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// Embedder is an ai.Embedder that waits for a token before each call.
type Embedder struct {
	next    ai.Embedder
	limiter *rate.Limiter
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder wraps next. A nil limiter passes calls straight through.
func NewEmbedder(next ai.Embedder, limiter *rate.Limiter) *Embedder {
	return &Embedder{next: next, limiter: limiter}
}

// EmbedText waits for a token and delegates.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}
	return e.next.EmbedText(ctx, text)
}

// EmbedTexts waits for a single token and delegates the whole batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}
	return e.next.EmbedTexts(ctx, texts)
}

// EntityExtractor is an ai.EntityExtractor that waits for a token before each call.
type EntityExtractor struct {
	next    ai.EntityExtractor
	limiter *rate.Limiter
}

var _ ai.EntityExtractor = (*EntityExtractor)(nil)

// NewEntityExtractor wraps next. A nil limiter passes calls straight through.
func NewEntityExtractor(next ai.EntityExtractor, limiter *rate.Limiter) *EntityExtractor {
	return &EntityExtractor{next: next, limiter: limiter}
}

// ExtractEntities waits for a token and delegates.
func (e *EntityExtractor) ExtractEntities(ctx context.Context, text, language string) ([]ai.EntityMention, error) {
	if err := wait(ctx, e.limiter); err != nil {
		return nil, err
	}
	return e.next.ExtractEntities(ctx, text, language)
}

// Provider wraps an ai.AIProvider so both services share one bucket.
type Provider struct {
	inner     ai.AIProvider
	embedder  *Embedder
	extractor *EntityExtractor
}

var _ ai.AIProvider = (*Provider)(nil)

// NewProvider wraps inner with a shared limiter built from cfg.
func NewProvider(inner ai.AIProvider, cfg Config) ai.AIProvider {
	limiter := NewLimiter(cfg)
	return &Provider{
		inner:     inner,
		embedder:  NewEmbedder(inner.Embedder(), limiter),
		extractor: NewEntityExtractor(inner.EntityExtractor(), limiter),
	}
}

// Embedder returns the throttled embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// EntityExtractor returns the throttled extractor.
func (p *Provider) EntityExtractor() ai.EntityExtractor {
	return p.extractor
}

// Close closes the wrapped provider.
func (p *Provider) Close() error {
	return p.inner.Close()
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}
