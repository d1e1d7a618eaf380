// Package config holds the tunables of the docflow pipeline.
//
// A Config starts from Default, can be overlaid from a TOML file with
// LoadFile and adjusted with functional options. Validate must pass before
// the values are handed to the engines.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOpenAI  = "openai"
	ProviderPattern = "pattern"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds configuration for every pipeline component.
type Config struct {
	// BatchSize is the ingestion batch size and the capacity of the ingestion
	// worker pool. It also caps how many queue items one enrichment pass claims.
	// Default: 100
	BatchSize int

	// ChunkSize is the maximum number of tokens per chunk.
	// Default: 650
	ChunkSize int

	// ChunkOverlap is the number of tokens shared by adjacent chunks.
	// Must be smaller than ChunkSize. Default: 100
	ChunkOverlap int

	// EmbeddingDimensions is the expected embedding width. Zero accepts any
	// width as long as every chunk of a document agrees.
	// Default: 384
	EmbeddingDimensions int

	// DefaultLanguage is applied to documents that do not declare one.
	// Default: "es"
	DefaultLanguage string

	// ConfidenceThreshold is the minimum cross-reference confidence (0-100)
	// for a cross-reference to be persisted.
	// Default: 75
	ConfidenceThreshold int

	// FuzzyThreshold is the minimum corpus match score (0-1) a candidate
	// needs to be considered at all.
	// Default: 0.5
	FuzzyThreshold float64

	// CandidateTopK is the number of corpus candidates examined per entity.
	// Default: 5
	CandidateTopK int

	// ReenrichPolicy controls enrichment of already enriched documents.
	// Default: append
	ReenrichPolicy core.ReenrichPolicy

	// EnrichPollInterval is how often the enrichment worker drains the queue
	// when no wake-up message arrives.
	// Default: 30s
	EnrichPollInterval time.Duration

	// CollectionInterval is the monitor sampling period.
	// Default: 60s
	CollectionInterval time.Duration

	// AlertWindow is the trailing window for status and metric aggregation.
	// Default: 1h
	AlertWindow time.Duration

	// CallTimeout bounds every call to an external service.
	// Default: 30s
	CallTimeout time.Duration

	// StoragePath is the badger data directory.
	// Default: "docflow.db"
	StoragePath string

	// GCInterval is how often Run reclaims badger value log space. Zero
	// disables the collector.
	// Default: 10m
	GCInterval time.Duration

	// Provider selects the AI implementation: "openai" or "pattern".
	// Default: "openai"
	Provider string

	// RateLimit throttles provider calls per second. Zero disables throttling.
	RateLimit float64

	// RateBurst is the token bucket burst for RateLimit.
	// Default: 4
	RateBurst int

	// AI configures the openai provider.
	AI *ai.Config
}

// Option configures a Config.
type Option func(*Config) error

// Default returns a Config with documented defaults.
func Default() *Config {
	return &Config{
		BatchSize:           100,
		ChunkSize:           650,
		ChunkOverlap:        100,
		EmbeddingDimensions: 384,
		DefaultLanguage:     "es",
		ConfidenceThreshold: 75,
		FuzzyThreshold:      0.5,
		CandidateTopK:       5,
		ReenrichPolicy:      core.ReenrichAppend,
		EnrichPollInterval:  30 * time.Second,
		CollectionInterval:  60 * time.Second,
		AlertWindow:         time.Hour,
		CallTimeout:         30 * time.Second,
		StoragePath:         "docflow.db",
		GCInterval:          10 * time.Minute,
		Provider:            ProviderOpenAI,
		RateBurst:           4,
		AI:                  ai.DefaultConfig(),
	}
}

// New returns Default with opts applied.
func New(opts ...Option) (*Config, error) {
	cfg := Default()
	if err := cfg.Apply(opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply applies opts in order and stops at the first error.
func (c *Config) Apply(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return err
		}
	}
	return nil
}

// WithBatchSize sets the batch size.
func WithBatchSize(size int) Option {
	return func(c *Config) error {
		if size < 1 {
			return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
		}
		c.BatchSize = size
		return nil
	}
}

// WithChunking sets the chunk size and overlap together.
func WithChunking(size, overlap int) Option {
	return func(c *Config) error {
		if err := core.ValidateChunking(size, overlap); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		c.ChunkSize = size
		c.ChunkOverlap = overlap
		return nil
	}
}

// WithConfidenceThreshold sets the cross-reference persistence threshold.
func WithConfidenceThreshold(threshold int) Option {
	return func(c *Config) error {
		if threshold < 0 || threshold > 100 {
			return fmt.Errorf("%w: confidence threshold must be between 0 and 100", ErrInvalidConfig)
		}
		c.ConfidenceThreshold = threshold
		return nil
	}
}

// WithReenrichPolicy sets the re-enrichment policy.
func WithReenrichPolicy(policy core.ReenrichPolicy) Option {
	return func(c *Config) error {
		if !policy.Valid() {
			return fmt.Errorf("%w: unknown re-enrich policy %q", ErrInvalidConfig, policy)
		}
		c.ReenrichPolicy = policy
		return nil
	}
}

// WithCollectionInterval sets the monitor sampling period.
func WithCollectionInterval(interval time.Duration) Option {
	return func(c *Config) error {
		if interval <= 0 {
			return fmt.Errorf("%w: collection interval must be positive", ErrInvalidConfig)
		}
		c.CollectionInterval = interval
		return nil
	}
}

// WithStoragePath sets the badger data directory.
func WithStoragePath(path string) Option {
	return func(c *Config) error {
		c.StoragePath = path
		return nil
	}
}

// WithProvider selects the AI implementation.
func WithProvider(name string) Option {
	return func(c *Config) error {
		if name != ProviderOpenAI && name != ProviderPattern {
			return fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, name)
		}
		c.Provider = name
		return nil
	}
}

// WithAIOptions applies ai.ConfigOptions to the AI section.
func WithAIOptions(opts ...ai.ConfigOption) Option {
	return func(c *Config) error {
		if c.AI == nil {
			c.AI = ai.DefaultConfig()
		}
		for _, opt := range opts {
			opt(c.AI)
		}
		return nil
	}
}

// Validate checks every field.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.BatchSize < 1 {
		fail("batch size must be positive")
	}
	if err := core.ValidateChunking(c.ChunkSize, c.ChunkOverlap); err != nil {
		fail("%v", err)
	}
	if c.EmbeddingDimensions < 0 {
		fail("embedding dimensions must not be negative")
	}
	if c.DefaultLanguage == "" {
		fail("default language is required")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		fail("confidence threshold must be between 0 and 100")
	}
	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		fail("fuzzy threshold must be between 0 and 1")
	}
	if c.CandidateTopK < 1 {
		fail("candidate top-k must be positive")
	}
	if !c.ReenrichPolicy.Valid() {
		fail("unknown re-enrich policy %q", c.ReenrichPolicy)
	}
	if c.EnrichPollInterval <= 0 {
		fail("enrichment poll interval must be positive")
	}
	if c.CollectionInterval <= 0 {
		fail("collection interval must be positive")
	}
	if c.AlertWindow <= 0 {
		fail("alert window must be positive")
	}
	if c.CallTimeout <= 0 {
		fail("call timeout must be positive")
	}
	if c.GCInterval < 0 {
		fail("gc interval must not be negative")
	}
	if c.RateLimit < 0 {
		fail("rate limit must not be negative")
	}
	switch c.Provider {
	case ProviderPattern:
	case ProviderOpenAI:
		if c.AI == nil {
			fail("ai section is required for the openai provider")
		} else if err := c.AI.Validate(); err != nil {
			fail("%v", err)
		}
	default:
		fail("unknown provider %q", c.Provider)
	}

	return errors.Join(errs...)
}
