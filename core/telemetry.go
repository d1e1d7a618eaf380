package core

import "time"

// LogStatus is the outcome recorded in pipeline log entries.
type LogStatus string

const (
	LogStatusSuccess LogStatus = "success"
	LogStatusFailed  LogStatus = "failed"
	LogStatusSkipped LogStatus = "skipped"
)

// IngestionLog records one ingestion attempt.
type IngestionLog struct {
	ID            ID
	DocumentID    string
	Status        LogStatus
	ChunksCreated int
	LatencyMs     int64
	Detail        string
	Timestamp     time.Time
}

// EnrichmentLog records one enrichment attempt.
type EnrichmentLog struct {
	ID                     ID
	DocumentID             string
	Status                 LogStatus
	EntitiesExtracted      int
	CrossReferencesCreated int
	AvgEntityConfidence    float64 // 0-100, zero when no entities
	AvgCrossRefConfidence  float64 // 0-100, zero when no cross-references
	LatencyMs              int64
	Detail                 string
	Timestamp              time.Time
}

// QueryLog records a query served by an external query layer.
// Only its latency and confidence feed the monitor.
type QueryLog struct {
	ID         ID
	Query      string
	Results    int
	LatencyMs  int64
	Confidence float64 // 0-1
	Timestamp  time.Time
}

// HealthCheck records whether a monitor collection cycle succeeded.
type HealthCheck struct {
	ID        ID
	OK        bool
	Detail    string
	Timestamp time.Time
}

// IngestionMetrics summarises ingestion over the monitor's window.
// DocumentsPerHour is DocumentsProcessed scaled to a one hour window.
type IngestionMetrics struct {
	DocumentsProcessed int
	DocumentsPerHour   float64
	ChunksCreated      int
	Failures           int
	AvgLatencyMs       float64
	QueueDepth         int
}

// EnrichmentMetrics summarises enrichment over the trailing hour.
type EnrichmentMetrics struct {
	DocumentsEnriched      int
	EntitiesExtracted      int
	CrossReferencesCreated int
	Failures               int
	AvgLatencyMs           float64
	AvgEntityConfidence    float64
	AvgCrossRefConfidence  float64
	QueueDepth             int
}

// QueryMetrics summarises queries over the trailing hour.
type QueryMetrics struct {
	Count         int
	AvgLatencyMs  float64
	AvgConfidence float64
	Precision     float64
}

// SystemMetrics captures host and process health.
type SystemMetrics struct {
	CPUPercent      float64
	MemoryPercent   float64
	PoolSize        int
	PoolRunning     int
	PoolUtilization float64 // 0-1
	UptimeSeconds   float64
	Availability    float64 // percent of successful collection cycles
	HealthChecks    int
}

// PerformanceMetricSnapshot is one sample of every pipeline KPI.
type PerformanceMetricSnapshot struct {
	ID         ID
	Timestamp  time.Time
	Ingestion  IngestionMetrics
	Enrichment EnrichmentMetrics
	Query      QueryMetrics
	System     SystemMetrics
}

// Severity grades an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is raised when a snapshot violates a KPI threshold.
// Alerts are never resolved automatically.
type Alert struct {
	ID           ID
	Severity     Severity
	Metric       string
	Message      string
	Value        float64
	Threshold    float64
	Timestamp    time.Time
	Acknowledged bool
}

// HealthStatus is the overall system status derived from recent alerts.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)
