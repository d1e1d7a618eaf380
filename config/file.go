package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/docflow/core"
)

// fileConfig is the TOML layout. Durations are strings such as "90s".
type fileConfig struct {
	Storage struct {
		Path       string `toml:"path"`
		GCInterval string `toml:"gc_interval"`
	} `toml:"storage"`

	Ingestion struct {
		BatchSize           int    `toml:"batch_size"`
		ChunkSize           int    `toml:"chunk_size"`
		ChunkOverlap        int    `toml:"chunk_overlap"`
		EmbeddingDimensions int    `toml:"embedding_dimensions"`
		DefaultLanguage     string `toml:"default_language"`
	} `toml:"ingestion"`

	Enrichment struct {
		ConfidenceThreshold int     `toml:"confidence_threshold"`
		FuzzyThreshold      float64 `toml:"fuzzy_threshold"`
		CandidateTopK       int     `toml:"candidate_top_k"`
		ReenrichPolicy      string  `toml:"reenrich_policy"`
		PollInterval        string  `toml:"poll_interval"`
	} `toml:"enrichment"`

	Monitor struct {
		CollectionInterval string `toml:"collection_interval"`
		AlertWindow        string `toml:"alert_window"`
	} `toml:"monitor"`

	AI struct {
		Provider       string  `toml:"provider"`
		EmbeddingHost  string  `toml:"embedding_host"`
		ExtractorHost  string  `toml:"extractor_host"`
		EmbeddingModel string  `toml:"embedding_model"`
		ExtractorModel string  `toml:"extractor_model"`
		APIToken       string  `toml:"api_token"`
		MinConfidence  int     `toml:"min_confidence"`
		EmbeddingBatch int     `toml:"embedding_batch_size"`
		CallTimeout    string  `toml:"call_timeout"`
		RateLimit      float64 `toml:"rate_limit"`
		RateBurst      int     `toml:"rate_burst"`
	} `toml:"ai"`
}

// LoadFile reads a TOML file over Default. Keys missing from the file keep
// their default values. The result is not validated.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes TOML data over Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	fc := toFile(cfg)
	if err := toml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := fromFile(fc, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(toFile(cfg))
}

func toFile(cfg *Config) *fileConfig {
	fc := &fileConfig{}
	fc.Storage.Path = cfg.StoragePath
	fc.Storage.GCInterval = cfg.GCInterval.String()

	fc.Ingestion.BatchSize = cfg.BatchSize
	fc.Ingestion.ChunkSize = cfg.ChunkSize
	fc.Ingestion.ChunkOverlap = cfg.ChunkOverlap
	fc.Ingestion.EmbeddingDimensions = cfg.EmbeddingDimensions
	fc.Ingestion.DefaultLanguage = cfg.DefaultLanguage

	fc.Enrichment.ConfidenceThreshold = cfg.ConfidenceThreshold
	fc.Enrichment.FuzzyThreshold = cfg.FuzzyThreshold
	fc.Enrichment.CandidateTopK = cfg.CandidateTopK
	fc.Enrichment.ReenrichPolicy = string(cfg.ReenrichPolicy)
	fc.Enrichment.PollInterval = cfg.EnrichPollInterval.String()

	fc.Monitor.CollectionInterval = cfg.CollectionInterval.String()
	fc.Monitor.AlertWindow = cfg.AlertWindow.String()

	fc.AI.Provider = cfg.Provider
	fc.AI.CallTimeout = cfg.CallTimeout.String()
	fc.AI.RateLimit = cfg.RateLimit
	fc.AI.RateBurst = cfg.RateBurst
	if cfg.AI != nil {
		fc.AI.EmbeddingHost = cfg.AI.EmbeddingHost
		fc.AI.ExtractorHost = cfg.AI.ExtractorHost
		fc.AI.EmbeddingModel = cfg.AI.EmbeddingModel
		fc.AI.ExtractorModel = cfg.AI.ExtractorModel
		fc.AI.APIToken = cfg.AI.APIToken
		fc.AI.MinConfidence = cfg.AI.MinConfidence
		fc.AI.EmbeddingBatch = cfg.AI.EmbeddingBatchSize
	}
	return fc
}

func fromFile(fc *fileConfig, cfg *Config) error {
	cfg.StoragePath = fc.Storage.Path

	cfg.BatchSize = fc.Ingestion.BatchSize
	cfg.ChunkSize = fc.Ingestion.ChunkSize
	cfg.ChunkOverlap = fc.Ingestion.ChunkOverlap
	cfg.EmbeddingDimensions = fc.Ingestion.EmbeddingDimensions
	cfg.DefaultLanguage = fc.Ingestion.DefaultLanguage

	cfg.ConfidenceThreshold = fc.Enrichment.ConfidenceThreshold
	cfg.FuzzyThreshold = fc.Enrichment.FuzzyThreshold
	cfg.CandidateTopK = fc.Enrichment.CandidateTopK
	cfg.ReenrichPolicy = core.ReenrichPolicy(fc.Enrichment.ReenrichPolicy)

	cfg.Provider = fc.AI.Provider
	cfg.RateLimit = fc.AI.RateLimit
	cfg.RateBurst = fc.AI.RateBurst
	cfg.AI.EmbeddingHost = fc.AI.EmbeddingHost
	cfg.AI.ExtractorHost = fc.AI.ExtractorHost
	cfg.AI.EmbeddingModel = fc.AI.EmbeddingModel
	cfg.AI.ExtractorModel = fc.AI.ExtractorModel
	cfg.AI.APIToken = fc.AI.APIToken
	cfg.AI.MinConfidence = fc.AI.MinConfidence
	cfg.AI.EmbeddingBatchSize = fc.AI.EmbeddingBatch

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"storage.gc_interval", fc.Storage.GCInterval, &cfg.GCInterval},
		{"enrichment.poll_interval", fc.Enrichment.PollInterval, &cfg.EnrichPollInterval},
		{"monitor.collection_interval", fc.Monitor.CollectionInterval, &cfg.CollectionInterval},
		{"monitor.alert_window", fc.Monitor.AlertWindow, &cfg.AlertWindow},
		{"ai.call_timeout", fc.AI.CallTimeout, &cfg.CallTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, d.name, err)
		}
		*d.dst = parsed
	}
	return nil
}
