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


package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/events"
	"github.com/poiesic/docflow/storage"
)

const (
	defaultCollectionInterval = 60 * time.Second
	defaultAlertWindow        = time.Hour
)

// AlertListener receives every alert raised by CheckAlerts.
type AlertListener func(alert *core.Alert)

// Monitor collects performance snapshots and raises KPI alerts.
type Monitor struct {
	metrics   storage.MetricsRepository
	logs      storage.LogRepository
	queue     storage.EnrichmentQueueRepository
	jobs      storage.IngestionQueueRepository
	sampler   SystemSampler
	pools     []PoolReporter
	kpis      []KPI
	bus       events.Bus
	pool      *ants.Pool
	startedAt time.Time
	logger    *slog.Logger

	interval    time.Duration
	alertWindow time.Duration

	listenersMu sync.RWMutex
	listeners   []AlertListener

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor) error

// WithCollectionInterval sets the time between collection cycles. Default is 60s.
func WithCollectionInterval(interval time.Duration) Option {
	return func(m *Monitor) error {
		if interval <= 0 {
			return fmt.Errorf("collection interval must be positive, got %s", interval)
		}
		m.interval = interval
		return nil
	}
}

// WithAlertWindow sets the trailing window for metrics and status. Default is 1h.
func WithAlertWindow(window time.Duration) Option {
	return func(m *Monitor) error {
		if window <= 0 {
			return fmt.Errorf("alert window must be positive, got %s", window)
		}
		m.alertWindow = window
		return nil
	}
}

// WithIngestionQueue reports the pending ingestion jobs as ingestion queue depth.
func WithIngestionQueue(jobs storage.IngestionQueueRepository) Option {
	return func(m *Monitor) error {
		m.jobs = jobs
		return nil
	}
}

// WithSampler sets the host resource sampler. Default is HostSampler.
// A nil sampler disables host sampling.
func WithSampler(sampler SystemSampler) Option {
	return func(m *Monitor) error {
		m.sampler = sampler
		return nil
	}
}

// WithPools adds worker pools to the connection-pool utilization KPI.
func WithPools(pools ...PoolReporter) Option {
	return func(m *Monitor) error {
		m.pools = append(m.pools, pools...)
		return nil
	}
}

// WithKPIs replaces the KPI table.
func WithKPIs(kpis []KPI) Option {
	return func(m *Monitor) error {
		m.kpis = kpis
		return nil
	}
}

// WithBus publishes an alert.raised message for every alert.
func WithBus(bus events.Bus) Option {
	return func(m *Monitor) error {
		if bus == nil {
			bus = events.Nop{}
		}
		m.bus = bus
		return nil
	}
}

// WithAlertListener registers a listener at construction time.
func WithAlertListener(listener AlertListener) Option {
	return func(m *Monitor) error {
		m.listeners = append(m.listeners, listener)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewMonitor creates a new performance monitor.
func NewMonitor(
	metrics storage.MetricsRepository,
	logs storage.LogRepository,
	queue storage.EnrichmentQueueRepository,
	opts ...Option,
) (*Monitor, error) {
	if metrics == nil {
		return nil, ErrMetricsRepositoryRequired
	}
	if logs == nil {
		return nil, ErrLogRepositoryRequired
	}
	if queue == nil {
		return nil, ErrQueueRepositoryRequired
	}

	m := &Monitor{
		metrics:     metrics,
		logs:        logs,
		queue:       queue,
		sampler:     HostSampler{},
		kpis:        DefaultKPIs(),
		bus:         events.Nop{},
		startedAt:   time.Now(),
		interval:    defaultCollectionInterval,
		alertWindow: defaultAlertWindow,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	m.logger = m.logger.With("component", "monitor")

	pool, err := ants.NewPool(len(m.collectors()))
	if err != nil {
		return nil, err
	}
	m.pool = pool

	return m, nil
}

// AddAlertListener registers listener for alerts raised from now on.
func (m *Monitor) AddAlertListener(listener AlertListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// CheckAlerts evaluates snapshot against the KPI table. Every violation is
// persisted as an alert and then handed to listeners and the bus.
func (m *Monitor) CheckAlerts(ctx context.Context, snapshot *core.PerformanceMetricSnapshot) ([]*core.Alert, error) {
	alerts := Evaluate(snapshot, m.kpis)
	if len(alerts) == 0 {
		return alerts, nil
	}

	alerts, err := m.metrics.AddAlerts(ctx, alerts...)
	if err != nil {
		return nil, fmt.Errorf("storing alerts: %w", err)
	}

	m.listenersMu.RLock()
	listeners := append([]AlertListener(nil), m.listeners...)
	m.listenersMu.RUnlock()

	for _, alert := range alerts {
		m.logger.Warn("KPI alert", "metric", alert.Metric, "severity", alert.Severity,
			"value", alert.Value, "threshold", alert.Threshold)
		for _, listener := range listeners {
			listener(alert)
		}
		m.bus.Publish(ctx, events.Message{
			Topic:     events.TopicAlertRaised,
			Alert:     alert,
			Detail:    alert.Message,
			Timestamp: alert.Timestamp,
		})
	}
	return alerts, nil
}

// AlertCounts tallies unacknowledged alerts by severity.
type AlertCounts struct {
	Critical int
	Warning  int
	Total    int
}

// SystemStatus is the current health of the pipeline.
type SystemStatus struct {
	Status    core.HealthStatus
	Timestamp time.Time
	Metrics   *core.PerformanceMetricSnapshot // Latest snapshot, nil before the first cycle
	Alerts    AlertCounts
	Summary   string
}

// GetSystemStatus derives the pipeline health from the unacknowledged alerts
// of the trailing window: critical if any is critical, else warning if any
// is a warning, else healthy.
func (m *Monitor) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	now := time.Now().UTC()

	latest, err := m.metrics.LatestSnapshot(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	alerts, err := m.metrics.AlertsSince(ctx, now.Add(-m.alertWindow))
	if err != nil {
		return nil, err
	}
	return m.statusFrom(now, latest, alerts), nil
}

func (m *Monitor) statusFrom(now time.Time, latest *core.PerformanceMetricSnapshot, alerts []*core.Alert) *SystemStatus {
	status, counts := statusOf(alerts)

	var summary string
	switch {
	case latest == nil:
		summary = "no metrics collected yet"
	case counts.Total == 0:
		summary = "all KPIs within thresholds"
	default:
		summary = fmt.Sprintf("%d critical and %d warning alerts in the last %s", counts.Critical, counts.Warning, m.alertWindow)
	}

	return &SystemStatus{
		Status:    status,
		Timestamp: now,
		Metrics:   latest,
		Alerts:    counts,
		Summary:   summary,
	}
}

// DashboardSummary condenses a window of snapshots.
type DashboardSummary struct {
	Snapshots              int
	AvgIngestionRate       float64
	AvgEnrichmentLatencyMs float64
	AvgQueryLatencyMs      float64
	AvgCrossRefConfidence  float64
	PeakPoolUtilization    float64
	PeakEnrichmentQueue    int
	AlertsBySeverity       map[core.Severity]int
}

// Dashboard is the monitoring view of a time window.
type Dashboard struct {
	Metrics       []*core.PerformanceMetricSnapshot
	Alerts        []*core.Alert
	CurrentHealth *SystemStatus
	Summary       DashboardSummary
}

// GetDashboardData returns the snapshots and alerts of the trailing window
// together with the current health.
func (m *Monitor) GetDashboardData(ctx context.Context, window time.Duration) (*Dashboard, error) {
	if window <= 0 {
		window = m.alertWindow
	}
	now := time.Now().UTC()

	snapshots, err := m.metrics.SnapshotsSince(ctx, now.Add(-window))
	if err != nil {
		return nil, err
	}
	alerts, err := m.metrics.AlertsSince(ctx, now.Add(-window))
	if err != nil {
		return nil, err
	}
	health, err := m.GetSystemStatus(ctx)
	if err != nil {
		return nil, err
	}

	return &Dashboard{
		Metrics:       snapshots,
		Alerts:        alerts,
		CurrentHealth: health,
		Summary:       summarize(snapshots, alerts),
	}, nil
}

func summarize(snapshots []*core.PerformanceMetricSnapshot, alerts []*core.Alert) DashboardSummary {
	summary := DashboardSummary{
		Snapshots:        len(snapshots),
		AlertsBySeverity: make(map[core.Severity]int),
	}
	for _, a := range alerts {
		summary.AlertsBySeverity[a.Severity]++
	}
	if len(snapshots) == 0 {
		return summary
	}

	var ingestion, enrichLatency, queryLatency, refConfidence float64
	var enrichSamples, querySamples, refSamples int
	for _, s := range snapshots {
		ingestion += s.Ingestion.DocumentsPerHour
		if s.Enrichment.DocumentsEnriched > 0 {
			enrichLatency += s.Enrichment.AvgLatencyMs
			enrichSamples++
		}
		if s.Query.Count > 0 {
			queryLatency += s.Query.AvgLatencyMs
			querySamples++
		}
		if s.Enrichment.CrossReferencesCreated > 0 {
			refConfidence += s.Enrichment.AvgCrossRefConfidence
			refSamples++
		}
		summary.PeakPoolUtilization = max(summary.PeakPoolUtilization, s.System.PoolUtilization)
		summary.PeakEnrichmentQueue = max(summary.PeakEnrichmentQueue, s.Enrichment.QueueDepth)
	}
	summary.AvgIngestionRate = ingestion / float64(len(snapshots))
	if enrichSamples > 0 {
		summary.AvgEnrichmentLatencyMs = enrichLatency / float64(enrichSamples)
	}
	if querySamples > 0 {
		summary.AvgQueryLatencyMs = queryLatency / float64(querySamples)
	}
	if refSamples > 0 {
		summary.AvgCrossRefConfidence = refConfidence / float64(refSamples)
	}
	return summary
}

// AcknowledgeAlert marks an alert as handled. Acknowledged alerts no longer
// count toward the system status.
func (m *Monitor) AcknowledgeAlert(ctx context.Context, id core.ID) error {
	return m.metrics.AcknowledgeAlert(ctx, id)
}

// RecordQuery logs a query served by an external query layer so that query
// latency and precision can be tracked. confidence is in [0,1].
func (m *Monitor) RecordQuery(ctx context.Context, query string, results int, latency time.Duration, confidence float64) error {
	return m.logs.AddQueryLog(ctx, &core.QueryLog{
		Query:      query,
		Results:    results,
		LatencyMs:  latency.Milliseconds(),
		Confidence: min(max(confidence, 0), 1),
	})
}

// Start runs the collection loop. It blocks until Stop is called or ctx is done.
// The first cycle runs immediately.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	m.logger.Info("monitor started", "interval", m.interval)
	m.runCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.markStopped()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// Stop signals the loop to exit and waits for the current cycle to finish.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

func (m *Monitor) markStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.running = false
		close(m.stopCh)
	}
}

// runCycle collects once and records the outcome as a health check.
// Errors never escape; the loop continues with the next tick.
func (m *Monitor) runCycle(ctx context.Context) {
	check := &core.HealthCheck{OK: true}

	snapshot, alerts, err := m.CollectMetrics(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.logger.Error("metrics collection failed", "err", err)
		check.OK = false
		check.Detail = err.Error()
	} else {
		m.logger.Debug("metrics collected",
			"documents", snapshot.Ingestion.DocumentsProcessed,
			"enriched", snapshot.Enrichment.DocumentsEnriched,
			"queueDepth", snapshot.Enrichment.QueueDepth,
			"alerts", len(alerts))
	}

	if err := m.metrics.AddHealthCheck(context.WithoutCancel(ctx), check); err != nil {
		m.logger.Warn("error recording health check", "err", err)
	}
}

// Release releases the collector pool.
func (m *Monitor) Release() {
	if m.pool != nil {
		m.pool.Release()
	}
}
