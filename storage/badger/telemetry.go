package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// LogRepository implements storage.LogRepository for BadgerDB.
// Entries are keyed by timestamp so trailing-window reads are range scans.
type LogRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.LogRepository = (*LogRepository)(nil)

// NewLogRepository creates a new LogRepository.
func NewLogRepository(backend *Backend) (*LogRepository, error) {
	idSeq, err := backend.GetSequence(logIDSeq)
	if err != nil {
		return nil, err
	}

	return &LogRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *LogRepository) Close() error {
	return r.idSeq.Release()
}

// AddIngestionLog appends an ingestion log entry.
func (r *LogRepository) AddIngestionLog(ctx context.Context, entry *core.IngestionLog) error {
	return appendTimed(r.backend, r.idSeq, ingestionLogPrefix, entry, &entry.ID, &entry.Timestamp)
}

// AddEnrichmentLog appends an enrichment log entry.
func (r *LogRepository) AddEnrichmentLog(ctx context.Context, entry *core.EnrichmentLog) error {
	return appendTimed(r.backend, r.idSeq, enrichmentLogPrefix, entry, &entry.ID, &entry.Timestamp)
}

// AddQueryLog appends a query log entry.
func (r *LogRepository) AddQueryLog(ctx context.Context, entry *core.QueryLog) error {
	return appendTimed(r.backend, r.idSeq, queryLogPrefix, entry, &entry.ID, &entry.Timestamp)
}

// IngestionLogsSince returns ingestion log entries since the given time.
func (r *LogRepository) IngestionLogsSince(ctx context.Context, since time.Time) ([]*core.IngestionLog, error) {
	return readSince[core.IngestionLog](r.backend, ingestionLogPrefix, since)
}

// EnrichmentLogsSince returns enrichment log entries since the given time.
func (r *LogRepository) EnrichmentLogsSince(ctx context.Context, since time.Time) ([]*core.EnrichmentLog, error) {
	return readSince[core.EnrichmentLog](r.backend, enrichmentLogPrefix, since)
}

// QueryLogsSince returns query log entries since the given time.
func (r *LogRepository) QueryLogsSince(ctx context.Context, since time.Time) ([]*core.QueryLog, error) {
	return readSince[core.QueryLog](r.backend, queryLogPrefix, since)
}

// MetricsRepository implements storage.MetricsRepository for BadgerDB.
type MetricsRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.MetricsRepository = (*MetricsRepository)(nil)

// NewMetricsRepository creates a new MetricsRepository.
func NewMetricsRepository(backend *Backend) (*MetricsRepository, error) {
	idSeq, err := backend.GetSequence(metricIDSeq)
	if err != nil {
		return nil, err
	}

	return &MetricsRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *MetricsRepository) Close() error {
	return r.idSeq.Release()
}

// AddSnapshot appends a metric snapshot.
func (r *MetricsRepository) AddSnapshot(ctx context.Context, snapshot *core.PerformanceMetricSnapshot) error {
	return appendTimed(r.backend, r.idSeq, snapshotPrefix, snapshot, &snapshot.ID, &snapshot.Timestamp)
}

// LatestSnapshot returns the most recent snapshot.
func (r *MetricsRepository) LatestSnapshot(ctx context.Context) (*core.PerformanceMetricSnapshot, error) {
	var latest *core.PerformanceMetricSnapshot
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(snapshotPrefix)
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration must seek past the last possible key of the prefix
		seek := append([]byte(snapshotPrefix), 0xff)
		iter.Seek(seek)
		if !iter.Valid() {
			return storage.ErrNotFound
		}
		return iter.Item().Value(func(val []byte) error {
			var err error
			latest, err = storage.Unmarshal[core.PerformanceMetricSnapshot](val)
			return err
		})
	}, false)
	return latest, err
}

// SnapshotsSince returns snapshots since the given time.
func (r *MetricsRepository) SnapshotsSince(ctx context.Context, since time.Time) ([]*core.PerformanceMetricSnapshot, error) {
	return readSince[core.PerformanceMetricSnapshot](r.backend, snapshotPrefix, since)
}

// AddAlerts appends alerts and indexes them by ID for acknowledgement.
func (r *MetricsRepository) AddAlerts(ctx context.Context, alerts ...*core.Alert) ([]*core.Alert, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, alert := range alerts {
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			alert.ID = id
			if alert.Timestamp.IsZero() {
				alert.Timestamp = time.Now().UTC()
			}
			key := makeTimeKey(alertPrefix, alert.Timestamp, alert.ID)
			if err := putRecord(tx, key, alert); err != nil {
				return err
			}
			if err := tx.Set(makeIDKey(alertIDPrefix, alert.ID), key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return alerts, err
}

// AlertsSince returns alerts since the given time.
func (r *MetricsRepository) AlertsSince(ctx context.Context, since time.Time) ([]*core.Alert, error) {
	return readSince[core.Alert](r.backend, alertPrefix, since)
}

// AcknowledgeAlert marks an alert acknowledged.
func (r *MetricsRepository) AcknowledgeAlert(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeIDKey(alertIDPrefix, id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		alert, err := readRecord[core.Alert](tx, key)
		if err != nil {
			return err
		}
		if alert == nil {
			return storage.ErrNotFound
		}
		alert.Acknowledged = true
		if err := putRecord(tx, key, alert); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// AddHealthCheck appends a collection-cycle health record.
func (r *MetricsRepository) AddHealthCheck(ctx context.Context, check *core.HealthCheck) error {
	return appendTimed(r.backend, r.idSeq, healthPrefix, check, &check.ID, &check.Timestamp)
}

// HealthChecksSince returns health records since the given time.
func (r *MetricsRepository) HealthChecksSince(ctx context.Context, since time.Time) ([]*core.HealthCheck, error) {
	return readSince[core.HealthCheck](r.backend, healthPrefix, since)
}

// appendTimed assigns an ID (and a timestamp if unset) and stores record under a time key.
func appendTimed[T any](backend *Backend, seq *badger.Sequence, prefix string, record *T, id *core.ID, timestamp *time.Time) error {
	return backend.WithTx(func(tx *badger.Txn) error {
		next, err := nextID(seq)
		if err != nil {
			return err
		}
		*id = next
		if timestamp.IsZero() {
			*timestamp = time.Now().UTC()
		}
		if err := putRecord(tx, makeTimeKey(prefix, *timestamp, next), record); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readSince returns records under a time-keyed prefix with timestamp >= since.
func readSince[T any](backend *Backend, prefix string, since time.Time) ([]*T, error) {
	var results []*T
	err := backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = scanRecords[T](tx, []byte(prefix), makePartialTimeKey(prefix, since))
		return err
	}, false)
	return results, err
}
