package monitor

import (
	"fmt"

	"github.com/poiesic/docflow/core"
)

// Direction says which side of the threshold is a violation.
type Direction int

const (
	// Below alerts when the value drops under the threshold.
	Below Direction = iota
	// Above alerts when the value exceeds the threshold.
	Above
)

func (d Direction) String() string {
	if d == Above {
		return "above"
	}
	return "below"
}

// KPI names.
const (
	KPIIngestionRate      = "ingestion_rate"
	KPIEnrichmentLatency  = "enrichment_latency"
	KPIQueryLatency       = "query_latency"
	KPISearchPrecision    = "search_precision"
	KPIEntityAccuracy     = "entity_accuracy"
	KPICrossRefConfidence = "cross_reference_confidence"
	KPIUptime             = "uptime"
	KPIPoolUtilization    = "connection_pool_utilization"
)

// KPI is one row of the threshold table.
type KPI struct {
	Name      string
	Unit      string
	Target    float64
	Threshold float64
	Direction Direction
	Severity  core.Severity

	// Value extracts the KPI from a snapshot. ok is false when the snapshot
	// holds no samples for it, in which case the KPI is not evaluated.
	Value func(s *core.PerformanceMetricSnapshot) (value float64, ok bool)
}

// Violated reports whether value is on the alerting side of the threshold.
func (k KPI) Violated(value float64) bool {
	if k.Direction == Above {
		return value > k.Threshold
	}
	return value < k.Threshold
}

// DefaultKPIs returns the standard threshold table.
func DefaultKPIs() []KPI {
	return []KPI{
		{
			Name: KPIIngestionRate, Unit: "docs/hour", Target: 100, Threshold: 50,
			Direction: Below, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				// Zero is a real rate once the monitor has completed a cycle.
				sampled := s.System.HealthChecks > 0 || s.Ingestion.DocumentsProcessed+s.Ingestion.Failures > 0
				return s.Ingestion.DocumentsPerHour, sampled
			},
		},
		{
			Name: KPIEnrichmentLatency, Unit: "ms", Target: 2000, Threshold: 5000,
			Direction: Above, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.Enrichment.AvgLatencyMs, s.Enrichment.DocumentsEnriched+s.Enrichment.Failures > 0
			},
		},
		{
			Name: KPIQueryLatency, Unit: "ms", Target: 1500, Threshold: 3000,
			Direction: Above, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.Query.AvgLatencyMs, s.Query.Count > 0
			},
		},
		{
			Name: KPISearchPrecision, Target: 0.80, Threshold: 0.70,
			Direction: Below, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.Query.Precision, s.Query.Count > 0
			},
		},
		{
			Name: KPIEntityAccuracy, Target: 0.90, Threshold: 0.85,
			Direction: Below, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.Enrichment.AvgEntityConfidence / 100, s.Enrichment.EntitiesExtracted > 0
			},
		},
		{
			Name: KPICrossRefConfidence, Unit: "%", Target: 85, Threshold: 75,
			Direction: Below, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.Enrichment.AvgCrossRefConfidence, s.Enrichment.CrossReferencesCreated > 0
			},
		},
		{
			Name: KPIUptime, Unit: "%", Target: 99.9, Threshold: 99.0,
			Direction: Below, Severity: core.SeverityWarning,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.System.Availability, s.System.HealthChecks > 0
			},
		},
		{
			Name: KPIPoolUtilization, Target: 0.80, Threshold: 0.95,
			Direction: Above, Severity: core.SeverityCritical,
			Value: func(s *core.PerformanceMetricSnapshot) (float64, bool) {
				return s.System.PoolUtilization, s.System.PoolSize > 0
			},
		},
	}
}

// Evaluate returns one alert per KPI the snapshot violates.
func Evaluate(snapshot *core.PerformanceMetricSnapshot, kpis []KPI) []*core.Alert {
	var alerts []*core.Alert
	for _, kpi := range kpis {
		value, ok := kpi.Value(snapshot)
		if !ok || !kpi.Violated(value) {
			continue
		}
		alerts = append(alerts, &core.Alert{
			Severity:  kpi.Severity,
			Metric:    kpi.Name,
			Message:   alertMessage(kpi, value),
			Value:     value,
			Threshold: kpi.Threshold,
			Timestamp: snapshot.Timestamp,
		})
	}
	return alerts
}

func alertMessage(kpi KPI, value float64) string {
	unit := ""
	if kpi.Unit != "" {
		unit = " " + kpi.Unit
	}
	return fmt.Sprintf("%s is %.2f%s, %s alert threshold %.2f%s (target %.2f%s)",
		kpi.Name, value, unit, kpi.Direction, kpi.Threshold, unit, kpi.Target, unit)
}

// statusOf derives the overall health from alerts, ignoring acknowledged ones.
func statusOf(alerts []*core.Alert) (core.HealthStatus, AlertCounts) {
	var counts AlertCounts
	for _, a := range alerts {
		if a.Acknowledged {
			continue
		}
		counts.Total++
		switch a.Severity {
		case core.SeverityCritical:
			counts.Critical++
		case core.SeverityWarning:
			counts.Warning++
		}
	}

	switch {
	case counts.Critical > 0:
		return core.HealthCritical, counts
	case counts.Warning > 0:
		return core.HealthWarning, counts
	default:
		return core.HealthHealthy, counts
	}
}
