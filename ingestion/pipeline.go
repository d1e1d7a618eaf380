package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/storage"
)

const (
	defaultBatchSize    = 100
	defaultChunkSize    = 650
	defaultChunkOverlap = 100
	defaultLanguage     = "es"
	defaultCallTimeout  = 30 * time.Second

	defaultTitle = "Untitled Document"
	defaultType  = "document"
)

// ProgressFunc receives batch progress after every completed batch.
type ProgressFunc func(processed, total int)

// Engine orchestrates chunking, embedding and storage of documents.
type Engine struct {
	documents       storage.DocumentRepository
	queue           storage.EnrichmentQueueRepository
	logs            storage.LogRepository
	jobs            storage.IngestionQueueRepository
	bus             events.Bus
	pool            *ants.Pool
	busy            atomic.Int64
	chunker         *Chunker
	embedding       *embeddingStep
	batchSize       int
	chunkSize       int
	chunkOverlap    int
	tokenizer       Tokenizer
	defaultLanguage string
	priority        int
	progress        ProgressFunc
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithBatchSize sets the batch size and the worker pool capacity.
// Default is 100.
func WithBatchSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			size = 1
		}
		e.batchSize = size
		return nil
	}
}

// WithChunking sets the chunk window size and overlap in tokens.
// Default is 650 tokens with 100 tokens of overlap.
func WithChunking(size, overlap int) Option {
	return func(e *Engine) error {
		if err := core.ValidateChunking(size, overlap); err != nil {
			return err
		}
		e.chunkSize = size
		e.chunkOverlap = overlap
		return nil
	}
}

// WithTokenizer sets the tokenizer used for chunking.
// Default is WhitespaceTokenizer.
func WithTokenizer(tokenizer Tokenizer) Option {
	return func(e *Engine) error {
		e.tokenizer = tokenizer
		return nil
	}
}

// WithEmbeddingDimensions makes every vector width other than dims an error.
// Zero accepts any width that is consistent within a document.
func WithEmbeddingDimensions(dims int) Option {
	return func(e *Engine) error {
		if dims < 0 {
			dims = 0
		}
		e.embedding.dimensions = dims
		return nil
	}
}

// WithDefaultLanguage sets the language of documents that do not declare one.
// Default is "es".
func WithDefaultLanguage(language string) Option {
	return func(e *Engine) error {
		if language != "" {
			e.defaultLanguage = language
		}
		return nil
	}
}

// WithCallTimeout bounds each embedding call. Default is 30s.
func WithCallTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		e.embedding.timeout = timeout
		return nil
	}
}

// WithPriority sets the enrichment priority of queued documents. Default is 0.
func WithPriority(priority int) Option {
	return func(e *Engine) error {
		e.priority = priority
		return nil
	}
}

// WithLogRepository records an ingestion log entry for every attempt.
func WithLogRepository(logs storage.LogRepository) Option {
	return func(e *Engine) error {
		e.logs = logs
		return nil
	}
}

// WithIngestionQueue enables Submit and ProcessIngestionQueue.
func WithIngestionQueue(jobs storage.IngestionQueueRepository) Option {
	return func(e *Engine) error {
		e.jobs = jobs
		return nil
	}
}

// WithBus publishes document.ingested and enrichment.queued messages.
func WithBus(bus events.Bus) Option {
	return func(e *Engine) error {
		if bus == nil {
			bus = events.Nop{}
		}
		e.bus = bus
		return nil
	}
}

// WithProgressFunc sets a callback invoked after every batch of IngestBatch.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(e *Engine) error {
		e.progress = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a new ingestion engine.
func NewEngine(
	documents storage.DocumentRepository,
	queue storage.EnrichmentQueueRepository,
	embedder ai.Embedder,
	opts ...Option,
) (*Engine, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		documents:       documents,
		queue:           queue,
		bus:             events.Nop{},
		batchSize:       defaultBatchSize,
		chunkSize:       defaultChunkSize,
		chunkOverlap:    defaultChunkOverlap,
		defaultLanguage: defaultLanguage,
		embedding: &embeddingStep{
			embedder: embedder,
			timeout:  defaultCallTimeout,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	chunker, err := NewChunker(e.chunkSize, e.chunkOverlap, e.tokenizer)
	if err != nil {
		return nil, err
	}
	e.chunker = chunker

	e.logger = e.logger.With("component", "ingestion")
	e.embedding.logger = e.logger.With("step", "embeddings")

	pool, err := ants.NewPool(e.batchSize)
	if err != nil {
		return nil, err
	}
	e.pool = pool

	return e, nil
}

// Result describes one ingested document.
type Result struct {
	DocumentID    string
	ChunksCreated int
	LatencyMs     int64
}

// DocumentResult is the outcome of one document in a batch.
type DocumentResult struct {
	Index         int // Position in the input slice
	DocumentID    string
	ChunksCreated int
	LatencyMs     int64
	Err           error
}

// BatchResult summarizes IngestBatch. Results are in input order.
type BatchResult struct {
	Total      int
	Successful int
	Failed     int
	Results    []DocumentResult
	LatencyMs  int64
}

// Ingest chunks, embeds and stores one document and queues it for enrichment.
//
// Failures wrap core.ErrIngestionFailure. On failure nothing of the document
// remains stored. An ingestion log entry is written either way.
func (e *Engine) Ingest(ctx context.Context, input core.DocumentInput) (*Result, error) {
	start := time.Now()
	now := start.UTC()

	doc := e.buildDocument(&input, now)

	chunks, err := e.prepare(ctx, &input, doc, now)
	if err == nil {
		err = e.store(ctx, doc, chunks)
	}

	latency := time.Since(start).Milliseconds()
	if err != nil {
		e.logger.Warn("document ingestion failed", "document", doc.ID, "err", err)
		e.recordLog(ctx, &core.IngestionLog{
			DocumentID: doc.ID,
			Status:     core.LogStatusFailed,
			LatencyMs:  latency,
			Detail:     err.Error(),
		})
		return nil, fmt.Errorf("%w: document %s: %w", core.ErrIngestionFailure, doc.ID, err)
	}

	e.recordLog(ctx, &core.IngestionLog{
		DocumentID:    doc.ID,
		Status:        core.LogStatusSuccess,
		ChunksCreated: len(chunks),
		LatencyMs:     latency,
	})
	e.logger.Debug("document ingested", "document", doc.ID, "chunks", len(chunks), "latencyMs", latency)

	return &Result{
		DocumentID:    doc.ID,
		ChunksCreated: len(chunks),
		LatencyMs:     latency,
	}, nil
}

// buildDocument applies defaults to caller input.
func (e *Engine) buildDocument(input *core.DocumentInput, now time.Time) *core.Document {
	id := input.ID
	if id == "" {
		id = core.NewDocumentID(now)
	}
	title := input.Title
	if title == "" {
		title = defaultTitle
	}
	docType := input.Type
	if docType == "" {
		docType = defaultType
	}
	language := input.Language
	if language == "" {
		language = e.defaultLanguage
	}

	return &core.Document{
		ID:    id,
		Title: title,
		Text:  input.Text,
		Metadata: core.DocumentMetadata{
			Source:   input.Source,
			Type:     docType,
			Created:  now,
			Language: language,
			Author:   input.Metadata["author"],
			Extra:    maps.Clone(input.Metadata),
		},
		CreatedAt: now,
	}
}

// prepare validates, chunks and embeds a document without touching storage.
func (e *Engine) prepare(ctx context.Context, input *core.DocumentInput, doc *core.Document, now time.Time) ([]*core.Chunk, error) {
	if err := core.ValidateDocumentInput(input); err != nil {
		return nil, err
	}

	windows := e.chunker.Split(doc.Text)
	if len(windows) == 0 {
		return nil, core.ErrEmptyText
	}

	vectors, err := e.embedding.embed(ctx, windows)
	if err != nil {
		return nil, err
	}

	chunks := make([]*core.Chunk, len(windows))
	for i, w := range windows {
		metadata := doc.Metadata
		metadata.Extra = maps.Clone(doc.Metadata.Extra)
		chunks[i] = &core.Chunk{
			ID:         core.ChunkID(doc.ID, w.Position.Index),
			DocumentID: doc.ID,
			Text:       w.Text,
			Position:   w.Position,
			TokenCount: w.TokenCount,
			Embedding:  vectors[i],
			Metadata:   metadata,
			CreatedAt:  now,
		}
	}
	return chunks, nil
}

// store persists the document with its chunks and queues it for enrichment.
// If queueing fails the document is removed again.
func (e *Engine) store(ctx context.Context, doc *core.Document, chunks []*core.Chunk) error {
	if err := e.documents.AddDocument(ctx, doc, chunks...); err != nil {
		return err
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	item, err := e.queue.Enqueue(ctx, &core.EnrichmentQueueItem{
		DocumentID: doc.ID,
		ChunkIDs:   chunkIDs,
		Priority:   e.priority,
	})
	if err != nil {
		if delErr := e.documents.DeleteDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			e.logger.Error("error removing document after failed enqueue", "document", doc.ID, "err", delErr)
			return errors.Join(err, delErr)
		}
		return err
	}

	e.bus.Publish(ctx, events.Message{Topic: events.TopicDocumentIngested, DocumentID: doc.ID})
	e.bus.Publish(ctx, events.Message{Topic: events.TopicEnrichmentQueued, DocumentID: doc.ID, ItemID: item.ID})
	return nil
}

func (e *Engine) recordLog(ctx context.Context, entry *core.IngestionLog) {
	if e.logs == nil {
		return
	}
	if err := e.logs.AddIngestionLog(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("error writing ingestion log", "document", entry.DocumentID, "err", err)
	}
}

// IngestBatch ingests inputs in consecutive batches of the configured size.
//
// The documents of a batch run concurrently on the worker pool and the
// batch settles before the next one starts. Individual failures are counted
// in the result and never returned as an error. The only error is the
// context's, after which the remaining inputs are reported as failed.
func (e *Engine) IngestBatch(ctx context.Context, inputs []core.DocumentInput) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{
		Total:   len(inputs),
		Results: make([]DocumentResult, len(inputs)),
	}

	var ctxErr error
	for offset := 0; offset < len(inputs); offset += e.batchSize {
		end := min(offset+e.batchSize, len(inputs))

		if ctxErr = ctx.Err(); ctxErr != nil {
			for i := offset; i < len(inputs); i++ {
				result.Results[i] = DocumentResult{Index: i, DocumentID: inputs[i].ID, Err: ctxErr}
			}
			break
		}

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			err := e.pool.Submit(func() {
				defer wg.Done()
				e.busy.Add(1)
				defer e.busy.Add(-1)
				result.Results[i] = e.ingestOne(ctx, i, inputs[i])
			})
			if err != nil {
				wg.Done()
				result.Results[i] = DocumentResult{Index: i, DocumentID: inputs[i].ID, Err: err}
			}
		}
		wg.Wait()

		e.reportProgress(end, len(inputs))
	}

	for _, r := range result.Results {
		if r.Err != nil {
			result.Failed++
		} else {
			result.Successful++
		}
	}
	result.LatencyMs = time.Since(start).Milliseconds()

	e.logger.Info("batch ingestion finished",
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
		"latencyMs", result.LatencyMs)

	return result, ctxErr
}

func (e *Engine) ingestOne(ctx context.Context, index int, input core.DocumentInput) DocumentResult {
	res, err := e.Ingest(ctx, input)
	if err != nil {
		return DocumentResult{Index: index, DocumentID: input.ID, Err: err}
	}
	return DocumentResult{
		Index:         index,
		DocumentID:    res.DocumentID,
		ChunksCreated: res.ChunksCreated,
		LatencyMs:     res.LatencyMs,
	}
}

func (e *Engine) reportProgress(processed, total int) {
	percentage := 100.0
	if total > 0 {
		percentage = float64(processed) / float64(total) * 100.0
	}
	e.logger.Info("ingestion progress", "processed", processed, "total", total, "percent", fmt.Sprintf("%.1f", percentage))
	if e.progress != nil {
		e.progress(processed, total)
	}
}

// Cap returns the worker pool capacity.
func (e *Engine) Cap() int {
	return e.pool.Cap()
}

// Running returns the number of documents being ingested right now. Idle
// pool workers waiting to expire are not counted.
func (e *Engine) Running() int {
	return int(e.busy.Load())
}

// Release releases resources including the worker pool.
// The engine should not be used after calling Release.
func (e *Engine) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}
