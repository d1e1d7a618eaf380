package monitor

import (
	"testing"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// degradedSnapshot violates every KPI of the default table.
func degradedSnapshot() *core.PerformanceMetricSnapshot {
	return &core.PerformanceMetricSnapshot{
		Timestamp: time.Now().UTC(),
		Ingestion: core.IngestionMetrics{DocumentsProcessed: 10, DocumentsPerHour: 10},
		Enrichment: core.EnrichmentMetrics{
			DocumentsEnriched:      3,
			EntitiesExtracted:      9,
			CrossReferencesCreated: 4,
			AvgLatencyMs:           6000,
			AvgEntityConfidence:    70,
			AvgCrossRefConfidence:  74,
		},
		Query: core.QueryMetrics{Count: 2, AvgLatencyMs: 3500, Precision: 0.5},
		System: core.SystemMetrics{
			PoolSize:        10,
			PoolRunning:     10,
			PoolUtilization: 1.0,
			Availability:    90,
			HealthChecks:    10,
		},
	}
}

func TestEvaluate(t *testing.T) {
	t.Run("every KPI violated", func(t *testing.T) {
		snapshot := degradedSnapshot()
		alerts := Evaluate(snapshot, DefaultKPIs())
		require.Len(t, alerts, 8)

		byMetric := map[string]*core.Alert{}
		for _, a := range alerts {
			byMetric[a.Metric] = a
			assert.Equal(t, snapshot.Timestamp, a.Timestamp)
			assert.NotEmpty(t, a.Message)
		}
		assert.Equal(t, core.SeverityCritical, byMetric[KPIPoolUtilization].Severity)
		assert.Equal(t, 0.95, byMetric[KPIPoolUtilization].Threshold)
		assert.Equal(t, core.SeverityWarning, byMetric[KPIIngestionRate].Severity)
		assert.Equal(t, 10.0, byMetric[KPIIngestionRate].Value)
		assert.InDelta(t, 0.70, byMetric[KPIEntityAccuracy].Value, 1e-9)
		assert.Contains(t, byMetric[KPIEnrichmentLatency].Message, "above alert threshold 5000.00 ms")
	})

	t.Run("KPIs without samples are skipped", func(t *testing.T) {
		alerts := Evaluate(&core.PerformanceMetricSnapshot{}, DefaultKPIs())
		assert.Empty(t, alerts)
	})

	t.Run("stalled ingestion after a completed cycle", func(t *testing.T) {
		snapshot := &core.PerformanceMetricSnapshot{
			Timestamp: time.Now().UTC(),
			System:    core.SystemMetrics{HealthChecks: 5, Availability: 100},
		}
		alerts := Evaluate(snapshot, DefaultKPIs())
		require.Len(t, alerts, 1)
		assert.Equal(t, KPIIngestionRate, alerts[0].Metric)
		assert.Zero(t, alerts[0].Value)
		assert.Equal(t, core.SeverityWarning, alerts[0].Severity)
	})

	t.Run("threshold itself is not a violation", func(t *testing.T) {
		snapshot := &core.PerformanceMetricSnapshot{
			Ingestion:  core.IngestionMetrics{DocumentsProcessed: 50, DocumentsPerHour: 50},
			Enrichment: core.EnrichmentMetrics{DocumentsEnriched: 1, AvgLatencyMs: 5000},
			System:     core.SystemMetrics{PoolSize: 100, PoolRunning: 95, PoolUtilization: 0.95},
		}
		assert.Empty(t, Evaluate(snapshot, DefaultKPIs()))
	})

	t.Run("healthy snapshot", func(t *testing.T) {
		snapshot := &core.PerformanceMetricSnapshot{
			Ingestion: core.IngestionMetrics{DocumentsProcessed: 120, DocumentsPerHour: 120},
			Enrichment: core.EnrichmentMetrics{
				DocumentsEnriched: 100, EntitiesExtracted: 300, CrossReferencesCreated: 50,
				AvgLatencyMs: 900, AvgEntityConfidence: 93, AvgCrossRefConfidence: 88,
			},
			Query:  core.QueryMetrics{Count: 10, AvgLatencyMs: 400, Precision: 0.9},
			System: core.SystemMetrics{PoolSize: 10, PoolRunning: 2, PoolUtilization: 0.2, Availability: 100, HealthChecks: 60},
		}
		assert.Empty(t, Evaluate(snapshot, DefaultKPIs()))
	})
}

func TestKPI_Violated(t *testing.T) {
	below := KPI{Threshold: 50, Direction: Below}
	assert.True(t, below.Violated(49.9))
	assert.False(t, below.Violated(50))

	above := KPI{Threshold: 0.95, Direction: Above}
	assert.True(t, above.Violated(0.96))
	assert.False(t, above.Violated(0.95))

	assert.Equal(t, "below", Below.String())
	assert.Equal(t, "above", Above.String())
}

func TestStatusOf(t *testing.T) {
	warning := &core.Alert{Severity: core.SeverityWarning}
	critical := &core.Alert{Severity: core.SeverityCritical}
	acked := &core.Alert{Severity: core.SeverityCritical, Acknowledged: true}

	tests := []struct {
		name   string
		alerts []*core.Alert
		want   core.HealthStatus
		counts AlertCounts
	}{
		{"no alerts", nil, core.HealthHealthy, AlertCounts{}},
		{"warning only", []*core.Alert{warning, warning}, core.HealthWarning, AlertCounts{Warning: 2, Total: 2}},
		{"critical wins", []*core.Alert{warning, critical}, core.HealthCritical, AlertCounts{Critical: 1, Warning: 1, Total: 2}},
		{"acknowledged ignored", []*core.Alert{acked, warning}, core.HealthWarning, AlertCounts{Warning: 1, Total: 1}},
		{"only acknowledged", []*core.Alert{acked}, core.HealthHealthy, AlertCounts{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, counts := statusOf(tt.alerts)
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.counts, counts)
		})
	}
}
