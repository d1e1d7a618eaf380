package storage

import (
	"context"
	"time"

	"github.com/poiesic/docflow/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository (ID sequences).
	// The backend itself is closed separately.
	Close() error
}

// DocumentRepository stores documents and their chunks.
type DocumentRepository interface {
	Repository
	// AddDocument stores a document together with its chunks in one transaction.
	// Either everything is persisted or nothing is.
	// Returns ErrDuplicateKey if a document with the same ID exists.
	AddDocument(ctx context.Context, doc *core.Document, chunks ...*core.Chunk) error

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// DeleteDocument removes a document and all of its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	// UpdateEnrichment replaces the enrichment metadata of a document and its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateEnrichment(ctx context.Context, id string, meta *core.EnrichmentMetadata) error

	// GetChunks retrieves a document's chunks ordered by position index.
	// Returns an empty slice when the document has no chunks.
	GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error)

	// UpdateChunks overwrites existing chunks (e.g. after re-embedding).
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) error

	// ListDocumentIDs returns the IDs of every stored document in key order.
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// EnrichmentQueueRepository persists enrichment work items.
// Items are never deleted; terminal items remain for auditing.
type EnrichmentQueueRepository interface {
	Repository
	// Enqueue stores a new pending item, assigning ID and CreatedAt.
	Enqueue(ctx context.Context, item *core.EnrichmentQueueItem) (*core.EnrichmentQueueItem, error)

	// GetItem retrieves an item by ID.
	// Returns ErrNotFound if the item doesn't exist.
	GetItem(ctx context.Context, id core.ID) (*core.EnrichmentQueueItem, error)

	// ListPending returns up to limit pending items ordered by priority
	// descending, then CreatedAt ascending.
	ListPending(ctx context.Context, limit int) ([]*core.EnrichmentQueueItem, error)

	// Claim atomically moves a pending item to processing and stamps StartedAt.
	// Returns ErrAlreadyClaimed if the item is not pending or a concurrent
	// claim won the race.
	Claim(ctx context.Context, id core.ID) (*core.EnrichmentQueueItem, error)

	// Complete moves a processing item to completed with its outcome.
	// Returns ErrInvalidTransition if the item is not processing.
	Complete(ctx context.Context, id core.ID, outcome *core.EnrichmentOutcome) error

	// Fail moves a processing item to failed with an error message.
	// Returns ErrInvalidTransition if the item is not processing.
	Fail(ctx context.Context, id core.ID, message string) error

	// CountPending returns the number of pending items.
	CountPending(ctx context.Context) (int, error)
}

// IngestionQueueRepository persists documents submitted for deferred ingestion.
type IngestionQueueRepository interface {
	Repository
	// Submit stores new pending jobs, assigning IDs and CreatedAt.
	Submit(ctx context.Context, jobs ...*core.IngestionJob) ([]*core.IngestionJob, error)

	// ListPending returns up to limit pending jobs in submission order.
	ListPending(ctx context.Context, limit int) ([]*core.IngestionJob, error)

	// Claim atomically moves a pending job to processing.
	// Returns ErrAlreadyClaimed if the job is not pending.
	Claim(ctx context.Context, id core.ID) (*core.IngestionJob, error)

	// Complete marks a processing job completed with the resulting document ID.
	Complete(ctx context.Context, id core.ID, documentID string) error

	// Fail marks a processing job failed.
	Fail(ctx context.Context, id core.ID, message string) error

	// CountPending returns the number of pending jobs.
	CountPending(ctx context.Context) (int, error)
}

// EntityRepository stores extracted entities. It is append-only.
type EntityRepository interface {
	Repository
	// AddEntities appends entities, assigning IDs and CreatedAt.
	AddEntities(ctx context.Context, entities ...*core.ExtractedEntity) ([]*core.ExtractedEntity, error)

	// GetEntitiesByDocument retrieves every entity extracted from a document.
	GetEntitiesByDocument(ctx context.Context, documentID string) ([]*core.ExtractedEntity, error)
}

// CrossReferenceRepository stores entity to corpus links. It is append-only.
type CrossReferenceRepository interface {
	Repository
	// AddCrossReferences appends cross-references, assigning IDs and CreatedAt.
	AddCrossReferences(ctx context.Context, refs ...*core.CrossReference) ([]*core.CrossReference, error)

	// GetCrossReferencesByDocument retrieves every cross-reference for a source document.
	GetCrossReferencesByDocument(ctx context.Context, documentID string) ([]*core.CrossReference, error)
}

// EnrichmentWriter stores the output of one enrichment run. Entities,
// cross-references and the document's enrichment metadata are committed
// together or not at all.
type EnrichmentWriter interface {
	SaveEnrichment(ctx context.Context, documentID string, entities []*core.ExtractedEntity, refs []*core.CrossReference, meta *core.EnrichmentMetadata) error
}

// LogRepository stores pipeline log entries in time order.
type LogRepository interface {
	Repository
	AddIngestionLog(ctx context.Context, entry *core.IngestionLog) error
	AddEnrichmentLog(ctx context.Context, entry *core.EnrichmentLog) error
	AddQueryLog(ctx context.Context, entry *core.QueryLog) error

	// IngestionLogsSince returns entries with Timestamp >= since, oldest first.
	IngestionLogsSince(ctx context.Context, since time.Time) ([]*core.IngestionLog, error)
	// EnrichmentLogsSince returns entries with Timestamp >= since, oldest first.
	EnrichmentLogsSince(ctx context.Context, since time.Time) ([]*core.EnrichmentLog, error)
	// QueryLogsSince returns entries with Timestamp >= since, oldest first.
	QueryLogsSince(ctx context.Context, since time.Time) ([]*core.QueryLog, error)
}

// MetricsRepository stores metric snapshots, alerts and health checks.
type MetricsRepository interface {
	Repository
	// AddSnapshot appends a metric snapshot, assigning its ID.
	AddSnapshot(ctx context.Context, snapshot *core.PerformanceMetricSnapshot) error

	// LatestSnapshot returns the most recent snapshot.
	// Returns ErrNotFound if none has been recorded.
	LatestSnapshot(ctx context.Context) (*core.PerformanceMetricSnapshot, error)

	// SnapshotsSince returns snapshots with Timestamp >= since, oldest first.
	SnapshotsSince(ctx context.Context, since time.Time) ([]*core.PerformanceMetricSnapshot, error)

	// AddAlerts appends alerts, assigning IDs.
	AddAlerts(ctx context.Context, alerts ...*core.Alert) ([]*core.Alert, error)

	// AlertsSince returns alerts with Timestamp >= since, oldest first.
	AlertsSince(ctx context.Context, since time.Time) ([]*core.Alert, error)

	// AcknowledgeAlert marks an alert acknowledged.
	// Returns ErrNotFound if the alert doesn't exist.
	AcknowledgeAlert(ctx context.Context, id core.ID) error

	// AddHealthCheck appends a collection-cycle health record.
	AddHealthCheck(ctx context.Context, check *core.HealthCheck) error

	// HealthChecksSince returns health records with Timestamp >= since, oldest first.
	HealthChecksSince(ctx context.Context, since time.Time) ([]*core.HealthCheck, error)
}

// CorpusRepository stores the reference corpus used for cross-referencing.
type CorpusRepository interface {
	Repository
	// AddRecords stores corpus records, replacing existing records with the same
	// collection and ID. Records without an ID get one derived from the name.
	AddRecords(ctx context.Context, records ...*core.CorpusRecord) ([]*core.CorpusRecord, error)

	// GetRecord retrieves a corpus record.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, collection, id string) (*core.CorpusRecord, error)

	// FuzzyFind returns up to topK records of a collection whose name or aliases
	// resemble query, best match first.
	FuzzyFind(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error)

	// CountRecords returns the number of records in a collection.
	CountRecords(ctx context.Context, collection string) (int, error)
}
