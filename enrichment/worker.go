package enrichment

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/stats"
)

const defaultPollInterval = 30 * time.Second

// Worker drains the enrichment queue in the background. It runs
// ProcessQueue on a timer and whenever an enrichment.queued message
// arrives on the bus.
type Worker struct {
	engine   *Engine
	bus      events.Bus
	interval time.Duration
	reporter *stats.Reporter
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets the time between queue polls. Default is 30s.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithWakeBus makes the worker run as soon as work is queued.
func WithWakeBus(bus events.Bus) WorkerOption {
	return func(w *Worker) {
		if bus != nil {
			w.bus = bus
		}
	}
}

// WithReporter folds every processed batch into reporter.
func WithReporter(reporter *stats.Reporter) WorkerOption {
	return func(w *Worker) {
		w.reporter = reporter
	}
}

// NewWorker creates a worker for engine.
func NewWorker(engine *Engine, opts ...WorkerOption) *Worker {
	w := &Worker{
		engine:   engine,
		bus:      events.Nop{},
		interval: defaultPollInterval,
		logger:   engine.logger.With("worker", "queue"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the worker loop. It blocks until Stop is called or ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	wake, cancel := w.bus.Subscribe(16, events.TopicEnrichmentQueued)
	defer cancel()

	w.drain(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			w.drain(ctx)
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			w.drain(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the current run to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopCh)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *Worker) markStopped() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		w.running = false
		close(w.stopCh)
	}
}

// drain processes batches until the queue is empty.
func (w *Worker) drain(ctx context.Context) {
	for {
		result, err := w.engine.ProcessQueue(ctx)
		if result != nil && w.reporter != nil && result.Processed > 0 {
			w.reporter.RecordEnrichment(result.Successful, result.Failed,
				result.EntitiesExtracted, result.CrossReferencesCreated, result.LatencyMs)
		}
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("error processing enrichment queue", "err", err)
			}
			return
		}
		if result.Processed == 0 {
			return
		}
	}
}
