package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker renders a single progress line that overwrites itself
// with a carriage return. Calls before Start are ignored.
type ProgressTracker struct {
	w        io.Writer
	unit     string
	total    int
	interval int

	mu       sync.Mutex
	started  time.Time
	done     int
	reported int
}

// NewProgressTracker reports to w every interval units of work. unit names
// what is being counted, such as "chunks"; it defaults to "items".
func NewProgressTracker(w io.Writer, total, interval int, unit string) *ProgressTracker {
	if unit == "" {
		unit = "items"
	}
	return &ProgressTracker{w: w, unit: unit, total: total, interval: interval}
}

// Start (re)starts the clock at zero progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	p.started, p.done, p.reported = time.Now(), 0, 0
	p.mu.Unlock()
}

// Update sets the absolute progress.
func (p *ProgressTracker) Update(done int) {
	p.set(func(int) int { return done })
}

// Increment adds n to the progress.
func (p *ProgressTracker) Increment(n int) {
	p.set(func(cur int) int { return cur + n })
}

func (p *ProgressTracker) set(next func(cur int) int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}
	p.done = min(next(p.done), p.total)
	if p.done-p.reported >= p.interval {
		p.render()
		p.reported = p.done
	}
}

// Finish marks all work done and terminates the line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return
	}
	p.done = p.total
	p.render()
	fmt.Fprintln(p.w)
}

// Elapsed is the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// render must be called with mu held.
func (p *ProgressTracker) render() {
	rate := float64(p.done) / time.Since(p.started).Seconds()

	var percent float64
	if p.total > 0 {
		percent = 100 * float64(p.done) / float64(p.total)
	}

	fmt.Fprintf(p.w, "\rProgress: %d/%d (%.1f%%) - %.1f %s/s", p.done, p.total, percent, rate, p.unit)
	if remaining := p.total - p.done; remaining > 0 && rate > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		fmt.Fprintf(p.w, " - eta %v", eta.Round(time.Second))
	}
}
