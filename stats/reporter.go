// Package stats aggregates the results of pipeline runs.
//
// Engines return per-call results and keep no counters of their own. A
// Reporter is owned by whoever drives the engines (the CLI, a worker loop)
// and folds those results into running totals.
package stats

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Totals accumulates one kind of run.
type Totals struct {
	Runs           int
	Processed      int
	Successful     int
	Failed         int
	TotalLatencyMs int64
}

// AvgLatencyMs returns the mean latency per processed item.
func (t Totals) AvgLatencyMs() float64 {
	if t.Processed == 0 {
		return 0
	}
	return float64(t.TotalLatencyMs) / float64(t.Processed)
}

// SuccessRate returns Successful/Processed, or 0 when nothing was processed.
func (t Totals) SuccessRate() float64 {
	if t.Processed == 0 {
		return 0
	}
	return float64(t.Successful) / float64(t.Processed)
}

// Summary is a point-in-time copy of a Reporter.
type Summary struct {
	Since                  time.Time
	Ingestion              Totals
	Enrichment             Totals
	ChunksCreated          int
	EntitiesExtracted      int
	CrossReferencesCreated int
}

// Reporter is safe for concurrent use.
type Reporter struct {
	mu      sync.Mutex
	summary Summary
}

// NewReporter creates an empty reporter.
func NewReporter() *Reporter {
	return &Reporter{summary: Summary{Since: time.Now().UTC()}}
}

// RecordIngestion folds one ingestion run into the totals.
func (r *Reporter) RecordIngestion(successful, failed, chunks int, latencyMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	add(&r.summary.Ingestion, successful, failed, latencyMs)
	r.summary.ChunksCreated += chunks
}

// RecordEnrichment folds one enrichment run into the totals.
func (r *Reporter) RecordEnrichment(successful, failed, entities, crossRefs int, latencyMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	add(&r.summary.Enrichment, successful, failed, latencyMs)
	r.summary.EntitiesExtracted += entities
	r.summary.CrossReferencesCreated += crossRefs
}

// Summary returns a copy of the current totals.
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

// Reset clears the totals.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = Summary{Since: time.Now().UTC()}
}

// WriteTo renders the totals as text.
func (r *Reporter) WriteTo(w io.Writer) (int64, error) {
	s := r.Summary()
	n, err := fmt.Fprintf(w,
		"ingestion:  %d processed, %d ok, %d failed, %d chunks, %.0f ms avg\n"+
			"enrichment: %d processed, %d ok, %d failed, %d entities, %d cross-references, %.0f ms avg\n",
		s.Ingestion.Processed, s.Ingestion.Successful, s.Ingestion.Failed, s.ChunksCreated, s.Ingestion.AvgLatencyMs(),
		s.Enrichment.Processed, s.Enrichment.Successful, s.Enrichment.Failed,
		s.EntitiesExtracted, s.CrossReferencesCreated, s.Enrichment.AvgLatencyMs())
	return int64(n), err
}

func add(t *Totals, successful, failed int, latencyMs int64) {
	t.Runs++
	t.Processed += successful + failed
	t.Successful += successful
	t.Failed += failed
	t.TotalLatencyMs += latencyMs
}
