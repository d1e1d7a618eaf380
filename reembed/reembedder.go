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


package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// Config holds configuration for a re-embedding run.
type Config struct {
	// BatchSize is the number of chunks sent to the embedder per call
	BatchSize int

	// ReportInterval is how often to report progress, in chunks
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff wait
	MaxRetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		MaxRetryDelay:  30 * time.Second,
	}
}

// Summary describes a completed run.
type Summary struct {
	Documents int
	Chunks    int
	Elapsed   time.Duration
}

// Reembedder regenerates the embeddings of every stored chunk.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a reembedder. progress receives human-readable
// output, typically os.Stderr. A nil config uses DefaultConfig.
func NewReembedder(documents storage.DocumentRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	logger := slog.Default().With("component", "reembedder")
	backoff := Backoff{
		MaxAttempts: config.MaxRetries,
		BaseDelay:   config.RetryDelay,
		MaxDelay:    config.MaxRetryDelay,
		OnRetry: func(attempt int, err error) {
			logger.Warn("embedding call failed, retrying", "attempt", attempt, "err", err)
		},
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(documents, embedder, backoff),
		iterator:  NewChunkIterator(documents, config.BatchSize),
		logger:    logger,
	}, nil
}

// Run re-embeds every chunk in the store. A failed batch aborts the run;
// batches already written keep their new embeddings.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	documents, total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in store (%d documents)\n", documents)
		return &Summary{Documents: documents}, nil
	}

	fmt.Fprintf(r.progress, "Starting re-embedding of %d chunks across %d documents (batch size: %d)\n",
		total, documents, r.iterator.batchSize)
	r.logger.Info("re-embedding started", "documents", documents, "chunks", total)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval, "chunks")
	tracker.Start()

	processed := 0
	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("processing batch at chunk %d: %w", processed, err)
		}
		processed += len(chunks)
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		r.logger.Error("re-embedding aborted", "processed", processed, "err", err)
		return nil, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Re-embedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	r.logger.Info("re-embedding complete", "chunks", processed, "elapsed", elapsed)

	return &Summary{Documents: documents, Chunks: processed, Elapsed: elapsed}, nil
}
