// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package docflow wires the document pipeline together: a badger store, an
// AI provider, the ingestion and enrichment engines, the enrichment worker
// and the performance monitor.
package docflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/ai/openai"
	"github.com/poiesic/docflow/ai/pattern"
	"github.com/poiesic/docflow/ai/ratelimit"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/enrichment"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/monitor"
	"github.com/poiesic/docflow/reembed"
	"github.com/poiesic/docflow/stats"
	"github.com/poiesic/docflow/storage/badger"
)

// System owns every pipeline component and the resources behind them.
type System struct {
	config     *config.Config
	store      *badger.Store
	provider   ai.AIProvider
	bus        *events.MemoryBus
	reporter   *stats.Reporter
	ingestion  *ingestion.Engine
	enrichment *enrichment.Engine
	worker     *enrichment.Worker
	monitor    *monitor.Monitor
	logger     *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	provider   ai.AIProvider
	inMemory   bool
	sampler    monitor.SystemSampler
	hasSampler bool
	logger     *slog.Logger
}

// WithProvider supplies an AI provider instead of building one from the
// configuration. The System takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithInMemoryStorage keeps all data in memory. StoragePath is ignored.
func WithInMemoryStorage() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithSampler replaces the host resource sampler. Nil disables sampling.
func WithSampler(sampler monitor.SystemSampler) Option {
	return func(o *options) {
		o.sampler = sampler
		o.hasSampler = true
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Open validates cfg and builds a System. A nil cfg uses config.Default.
func Open(cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	s := &System{
		config:   cfg,
		reporter: stats.NewReporter(),
		logger:   o.logger,
	}

	var err error
	if s.store, err = badger.OpenStore(cfg.StoragePath, o.inMemory); err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = NewProvider(cfg); err != nil {
			s.Close()
			return nil, fmt.Errorf("creating AI provider: %w", err)
		}
	}

	s.bus = events.NewMemoryBus(o.logger)

	if err := s.build(cfg, o); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *System) build(cfg *config.Config, o *options) error {
	var err error
	s.ingestion, err = ingestion.NewEngine(s.store.Documents, s.store.EnrichmentQueue, s.provider.Embedder(),
		ingestion.WithBatchSize(cfg.BatchSize),
		ingestion.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
		ingestion.WithEmbeddingDimensions(cfg.EmbeddingDimensions),
		ingestion.WithDefaultLanguage(cfg.DefaultLanguage),
		ingestion.WithCallTimeout(cfg.CallTimeout),
		ingestion.WithLogRepository(s.store.Logs),
		ingestion.WithIngestionQueue(s.store.IngestionQueue),
		ingestion.WithBus(s.bus),
		ingestion.WithLogger(o.logger),
	)
	if err != nil {
		return fmt.Errorf("creating ingestion engine: %w", err)
	}

	s.enrichment, err = enrichment.NewEngine(
		s.store.Documents, s.store.EnrichmentQueue, s.store.Entities, s.store.CrossReferences,
		s.provider.EntityExtractor(), s.store.Corpus,
		enrichment.WithBatchSize(cfg.BatchSize),
		enrichment.WithConfidenceThreshold(cfg.ConfidenceThreshold),
		enrichment.WithFuzzyThreshold(cfg.FuzzyThreshold),
		enrichment.WithTopK(cfg.CandidateTopK),
		enrichment.WithReenrichPolicy(cfg.ReenrichPolicy),
		enrichment.WithDefaultLanguage(cfg.DefaultLanguage),
		enrichment.WithCallTimeout(cfg.CallTimeout),
		enrichment.WithLogRepository(s.store.Logs),
		enrichment.WithEnrichmentWriter(s.store),
		enrichment.WithBus(s.bus),
		enrichment.WithLogger(o.logger),
	)
	if err != nil {
		return fmt.Errorf("creating enrichment engine: %w", err)
	}

	s.worker = enrichment.NewWorker(s.enrichment,
		enrichment.WithPollInterval(cfg.EnrichPollInterval),
		enrichment.WithWakeBus(s.bus),
		enrichment.WithReporter(s.reporter),
	)

	monitorOpts := []monitor.Option{
		monitor.WithCollectionInterval(cfg.CollectionInterval),
		monitor.WithAlertWindow(cfg.AlertWindow),
		monitor.WithIngestionQueue(s.store.IngestionQueue),
		monitor.WithPools(s.ingestion),
		monitor.WithBus(s.bus),
		monitor.WithLogger(o.logger),
	}
	if o.hasSampler {
		monitorOpts = append(monitorOpts, monitor.WithSampler(o.sampler))
	}
	s.monitor, err = monitor.NewMonitor(s.store.Metrics, s.store.Logs, s.store.EnrichmentQueue, monitorOpts...)
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	return nil
}

// NewProvider builds the AI provider named by cfg.Provider, throttled when
// cfg.RateLimit is positive.
func NewProvider(cfg *config.Config) (ai.AIProvider, error) {
	var provider ai.AIProvider
	switch cfg.Provider {
	case config.ProviderPattern:
		minConfidence := 0
		if cfg.AI != nil {
			minConfidence = cfg.AI.MinConfidence
		}
		provider = pattern.NewProvider(cfg.EmbeddingDimensions, minConfidence)
	case config.ProviderOpenAI:
		var err error
		if provider, err = openai.NewProvider(cfg.AI); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalidConfig, cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		provider = ratelimit.NewProvider(provider, ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit,
			BurstSize:         cfg.RateBurst,
		})
	}
	return provider, nil
}

// Accessors for the individual components.

func (s *System) Config() *config.Config { return s.config }
func (s *System) Store() *badger.Store { return s.store }
func (s *System) Provider() ai.AIProvider { return s.provider }
func (s *System) Bus() events.Bus { return s.bus }
func (s *System) Reporter() *stats.Reporter { return s.reporter }
func (s *System) Ingestion() *ingestion.Engine { return s.ingestion }
func (s *System) Enrichment() *enrichment.Engine { return s.enrichment }
func (s *System) Worker() *enrichment.Worker { return s.worker }
func (s *System) Monitor() *monitor.Monitor { return s.monitor }

// NewReembedder creates a reembedder over the stored chunks using the
// system's embedder.
func (s *System) NewReembedder(cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(s.store.Documents, s.provider.Embedder(), cfg, progress)
}

// Run starts the enrichment worker, the monitor and the storage garbage
// collector and blocks until ctx is done or one of them fails. Cancellation
// is not reported as an error.
func (s *System) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type starter struct {
		name  string
		start func(context.Context) error
	}
	starters := []starter{
		{"enrichment worker", s.worker.Start},
		{"monitor", s.monitor.Start},
	}
	if s.config.GCInterval > 0 {
		starters = append(starters, starter{"storage gc", func(ctx context.Context) error {
			return s.store.Backend.RunGC(ctx, s.config.GCInterval)
		}})
	}

	errs := make([]error, len(starters))
	var wg sync.WaitGroup
	for i, st := range starters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := st.start(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("component stopped", "component", st.name, "err", err)
				errs[i] = fmt.Errorf("%s: %w", st.name, err)
				cancel()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close stops background components and releases every resource.
func (s *System) Close() error {
	var errs []error
	if s.worker != nil {
		errs = append(errs, s.worker.Stop())
	}
	if s.monitor != nil {
		errs = append(errs, s.monitor.Stop())
		s.monitor.Release()
	}
	if s.ingestion != nil {
		s.ingestion.Release()
	}
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
