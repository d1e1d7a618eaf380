package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/poiesic/docflow/core"
)

// collector fills one section of a snapshot.
type collector struct {
	name string
	run  func(ctx context.Context, since time.Time, s *core.PerformanceMetricSnapshot) error
}

func (m *Monitor) collectors() []collector {
	return []collector{
		{"ingestion", m.collectIngestion},
		{"enrichment", m.collectEnrichment},
		{"query", m.collectQuery},
		{"system", m.collectSystem},
	}
}

// CollectMetrics gathers one snapshot, persists it and evaluates the KPIs.
//
// The collectors run concurrently and each writes its own section of the
// snapshot. If any of them fails nothing is persisted and the error wraps
// core.ErrMonitoringCollection.
func (m *Monitor) CollectMetrics(ctx context.Context) (*core.PerformanceMetricSnapshot, []*core.Alert, error) {
	now := time.Now().UTC()
	since := now.Add(-m.alertWindow)
	snapshot := &core.PerformanceMetricSnapshot{Timestamp: now}

	collectors := m.collectors()
	errs := make([]error, len(collectors))

	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			if err := c.run(ctx, since, snapshot); err != nil {
				errs[i] = fmt.Errorf("%s metrics: %w", c.name, err)
			}
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("%s metrics: %w", c.name, err)
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", core.ErrMonitoringCollection, err)
	}

	if err := m.metrics.AddSnapshot(ctx, snapshot); err != nil {
		return nil, nil, fmt.Errorf("%w: storing snapshot: %w", core.ErrMonitoringCollection, err)
	}

	alerts, err := m.CheckAlerts(ctx, snapshot)
	if err != nil {
		return snapshot, nil, fmt.Errorf("%w: %w", core.ErrMonitoringCollection, err)
	}
	return snapshot, alerts, nil
}

func (m *Monitor) collectIngestion(ctx context.Context, since time.Time, s *core.PerformanceMetricSnapshot) error {
	logs, err := m.logs.IngestionLogsSince(ctx, since)
	if err != nil {
		return err
	}

	var latency int64
	for _, entry := range logs {
		switch entry.Status {
		case core.LogStatusSuccess:
			s.Ingestion.DocumentsProcessed++
			s.Ingestion.ChunksCreated += entry.ChunksCreated
			latency += entry.LatencyMs
		case core.LogStatusFailed:
			s.Ingestion.Failures++
		}
	}
	if s.Ingestion.DocumentsProcessed > 0 {
		s.Ingestion.AvgLatencyMs = float64(latency) / float64(s.Ingestion.DocumentsProcessed)
	}
	s.Ingestion.DocumentsPerHour = perHour(s.Ingestion.DocumentsProcessed, m.alertWindow)

	if m.jobs != nil {
		depth, err := m.jobs.CountPending(ctx)
		if err != nil {
			return err
		}
		s.Ingestion.QueueDepth = depth
	}
	return nil
}

func (m *Monitor) collectEnrichment(ctx context.Context, since time.Time, s *core.PerformanceMetricSnapshot) error {
	logs, err := m.logs.EnrichmentLogsSince(ctx, since)
	if err != nil {
		return err
	}

	var latency int64
	var entityConfidence, refConfidence float64
	for _, entry := range logs {
		switch entry.Status {
		case core.LogStatusSuccess:
			s.Enrichment.DocumentsEnriched++
			s.Enrichment.EntitiesExtracted += entry.EntitiesExtracted
			s.Enrichment.CrossReferencesCreated += entry.CrossReferencesCreated
			entityConfidence += entry.AvgEntityConfidence * float64(entry.EntitiesExtracted)
			refConfidence += entry.AvgCrossRefConfidence * float64(entry.CrossReferencesCreated)
			latency += entry.LatencyMs
		case core.LogStatusFailed:
			s.Enrichment.Failures++
		}
	}
	if s.Enrichment.DocumentsEnriched > 0 {
		s.Enrichment.AvgLatencyMs = float64(latency) / float64(s.Enrichment.DocumentsEnriched)
	}
	if s.Enrichment.EntitiesExtracted > 0 {
		s.Enrichment.AvgEntityConfidence = entityConfidence / float64(s.Enrichment.EntitiesExtracted)
	}
	if s.Enrichment.CrossReferencesCreated > 0 {
		s.Enrichment.AvgCrossRefConfidence = refConfidence / float64(s.Enrichment.CrossReferencesCreated)
	}

	depth, err := m.queue.CountPending(ctx)
	if err != nil {
		return err
	}
	s.Enrichment.QueueDepth = depth
	return nil
}

func (m *Monitor) collectQuery(ctx context.Context, since time.Time, s *core.PerformanceMetricSnapshot) error {
	logs, err := m.logs.QueryLogsSince(ctx, since)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		return nil
	}

	var latency int64
	var confidence float64
	for _, entry := range logs {
		latency += entry.LatencyMs
		confidence += entry.Confidence
	}
	s.Query.Count = len(logs)
	s.Query.AvgLatencyMs = float64(latency) / float64(len(logs))
	s.Query.AvgConfidence = confidence / float64(len(logs))
	// No relevance feedback exists yet, so mean result confidence stands in for precision.
	s.Query.Precision = s.Query.AvgConfidence
	return nil
}

func (m *Monitor) collectSystem(ctx context.Context, since time.Time, s *core.PerformanceMetricSnapshot) error {
	if m.sampler != nil {
		cpuPercent, memPercent, err := m.sampler.Sample(ctx)
		if err != nil {
			m.logger.Warn("error sampling host resources", "err", err)
		}
		s.System.CPUPercent = cpuPercent
		s.System.MemoryPercent = memPercent
	}

	s.System.PoolSize, s.System.PoolRunning, s.System.PoolUtilization = poolUsage(m.pools)
	s.System.UptimeSeconds = time.Since(m.startedAt).Seconds()

	checks, err := m.metrics.HealthChecksSince(ctx, since)
	if err != nil {
		return err
	}
	s.System.HealthChecks = len(checks)
	if len(checks) > 0 {
		ok := 0
		for _, c := range checks {
			if c.OK {
				ok++
			}
		}
		s.System.Availability = float64(ok) / float64(len(checks)) * 100
	}
	return nil
}

// perHour scales a count observed over window to a one hour rate.
func perHour(count int, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	return float64(count) * float64(time.Hour) / float64(window)
}
