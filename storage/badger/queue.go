package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// EnrichmentQueueRepository implements storage.EnrichmentQueueRepository for BadgerDB.
//
// Items live under their ID; pending items are additionally indexed by
// (priority desc, createdAt asc) so ListPending is a prefix scan.
type EnrichmentQueueRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.EnrichmentQueueRepository = (*EnrichmentQueueRepository)(nil)

// NewEnrichmentQueueRepository creates a new EnrichmentQueueRepository.
func NewEnrichmentQueueRepository(backend *Backend) (*EnrichmentQueueRepository, error) {
	idSeq, err := backend.GetSequence(enrichQueueIDSeq)
	if err != nil {
		return nil, err
	}

	return &EnrichmentQueueRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *EnrichmentQueueRepository) Close() error {
	return r.idSeq.Release()
}

// Enqueue stores a new pending item.
func (r *EnrichmentQueueRepository) Enqueue(ctx context.Context, item *core.EnrichmentQueueItem) (*core.EnrichmentQueueItem, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		item.ID = id
		item.Status = core.QueueStatusPending
		item.CreatedAt = time.Now().UTC()

		if err := putRecord(tx, makeIDKey(enrichQueuePrefix, item.ID), item); err != nil {
			return err
		}
		pendingKey := makeEnrichPendingKey(item.Priority, item.CreatedAt, item.ID)
		if err := tx.Set(pendingKey, storage.MarshalID(item.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return item, err
}

// GetItem retrieves an item by ID.
func (r *EnrichmentQueueRepository) GetItem(ctx context.Context, id core.ID) (*core.EnrichmentQueueItem, error) {
	var result *core.EnrichmentQueueItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord[core.EnrichmentQueueItem](tx, makeIDKey(enrichQueuePrefix, id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// ListPending returns up to limit pending items, highest priority first.
func (r *EnrichmentQueueRepository) ListPending(ctx context.Context, limit int) ([]*core.EnrichmentQueueItem, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var items []*core.EnrichmentQueueItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := readIndexedIDs(tx, []byte(enrichPendingPrefix), limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			item, err := readRecord[core.EnrichmentQueueItem](tx, makeIDKey(enrichQueuePrefix, id))
			if err != nil {
				return err
			}
			if item != nil {
				items = append(items, item)
			}
		}
		return nil
	}, false)
	return items, err
}

// Claim atomically moves a pending item to processing.
//
// The item key is read inside the update transaction, so a concurrent claim
// that commits first makes this commit fail with a conflict.
func (r *EnrichmentQueueRepository) Claim(ctx context.Context, id core.ID) (*core.EnrichmentQueueItem, error) {
	var claimed *core.EnrichmentQueueItem
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIDKey(enrichQueuePrefix, id)
		item, err := readRecord[core.EnrichmentQueueItem](tx, key)
		if err != nil {
			return err
		}
		if item == nil {
			return storage.ErrNotFound
		}
		if item.Status != core.QueueStatusPending {
			return storage.ErrAlreadyClaimed
		}

		started := time.Now().UTC()
		item.Status = core.QueueStatusProcessing
		item.StartedAt = &started
		if err := putRecord(tx, key, item); err != nil {
			return err
		}
		if err := tx.Delete(makeEnrichPendingKey(item.Priority, item.CreatedAt, item.ID)); err != nil {
			return err
		}
		if err := commitClaim(tx); err != nil {
			return err
		}
		claimed = item
		return nil
	}, true)
	return claimed, err
}

// Complete moves a processing item to completed.
func (r *EnrichmentQueueRepository) Complete(ctx context.Context, id core.ID, outcome *core.EnrichmentOutcome) error {
	return r.finish(id, func(item *core.EnrichmentQueueItem) {
		item.Status = core.QueueStatusCompleted
		item.Result = outcome
	})
}

// Fail moves a processing item to failed.
func (r *EnrichmentQueueRepository) Fail(ctx context.Context, id core.ID, message string) error {
	return r.finish(id, func(item *core.EnrichmentQueueItem) {
		item.Status = core.QueueStatusFailed
		item.Error = message
	})
}

// finish applies a terminal transition to a processing item.
func (r *EnrichmentQueueRepository) finish(id core.ID, apply func(*core.EnrichmentQueueItem)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIDKey(enrichQueuePrefix, id)
		item, err := readRecord[core.EnrichmentQueueItem](tx, key)
		if err != nil {
			return err
		}
		if item == nil {
			return storage.ErrNotFound
		}
		if item.Status != core.QueueStatusProcessing {
			return fmt.Errorf("%w: item %d is %s", storage.ErrInvalidTransition, id, item.Status)
		}

		completed := time.Now().UTC()
		apply(item)
		item.CompletedAt = &completed
		if err := putRecord(tx, key, item); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// CountPending returns the number of pending items.
func (r *EnrichmentQueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		count = countKeys(tx, []byte(enrichPendingPrefix))
		return nil
	}, false)
	return count, err
}

// IngestionQueueRepository implements storage.IngestionQueueRepository for BadgerDB.
type IngestionQueueRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.IngestionQueueRepository = (*IngestionQueueRepository)(nil)

// NewIngestionQueueRepository creates a new IngestionQueueRepository.
func NewIngestionQueueRepository(backend *Backend) (*IngestionQueueRepository, error) {
	idSeq, err := backend.GetSequence(ingestQueueIDSeq)
	if err != nil {
		return nil, err
	}

	return &IngestionQueueRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *IngestionQueueRepository) Close() error {
	return r.idSeq.Release()
}

// Submit stores new pending jobs.
func (r *IngestionQueueRepository) Submit(ctx context.Context, jobs ...*core.IngestionJob) ([]*core.IngestionJob, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, job := range jobs {
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			job.ID = id
			job.Status = core.QueueStatusPending
			job.CreatedAt = time.Now().UTC()

			if err := putRecord(tx, makeIDKey(ingestQueuePrefix, job.ID), job); err != nil {
				return err
			}
			if err := tx.Set(makeIngestPendingKey(job.CreatedAt, job.ID), storage.MarshalID(job.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return jobs, err
}

// ListPending returns up to limit pending jobs in submission order.
func (r *IngestionQueueRepository) ListPending(ctx context.Context, limit int) ([]*core.IngestionJob, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var jobs []*core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := readIndexedIDs(tx, []byte(ingestPendingPrefix), limit)
		if err != nil {
			return err
		}
		for _, id := range ids {
			job, err := readRecord[core.IngestionJob](tx, makeIDKey(ingestQueuePrefix, id))
			if err != nil {
				return err
			}
			if job != nil {
				jobs = append(jobs, job)
			}
		}
		return nil
	}, false)
	return jobs, err
}

// Claim atomically moves a pending job to processing.
func (r *IngestionQueueRepository) Claim(ctx context.Context, id core.ID) (*core.IngestionJob, error) {
	var claimed *core.IngestionJob
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIDKey(ingestQueuePrefix, id)
		job, err := readRecord[core.IngestionJob](tx, key)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if job.Status != core.QueueStatusPending {
			return storage.ErrAlreadyClaimed
		}

		job.Status = core.QueueStatusProcessing
		if err := putRecord(tx, key, job); err != nil {
			return err
		}
		if err := tx.Delete(makeIngestPendingKey(job.CreatedAt, job.ID)); err != nil {
			return err
		}
		if err := commitClaim(tx); err != nil {
			return err
		}
		claimed = job
		return nil
	}, true)
	return claimed, err
}

// Complete marks a processing job completed.
func (r *IngestionQueueRepository) Complete(ctx context.Context, id core.ID, documentID string) error {
	return r.finish(id, func(job *core.IngestionJob) {
		job.Status = core.QueueStatusCompleted
		job.DocumentID = documentID
	})
}

// Fail marks a processing job failed.
func (r *IngestionQueueRepository) Fail(ctx context.Context, id core.ID, message string) error {
	return r.finish(id, func(job *core.IngestionJob) {
		job.Status = core.QueueStatusFailed
		job.Error = message
	})
}

func (r *IngestionQueueRepository) finish(id core.ID, apply func(*core.IngestionJob)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeIDKey(ingestQueuePrefix, id)
		job, err := readRecord[core.IngestionJob](tx, key)
		if err != nil {
			return err
		}
		if job == nil {
			return storage.ErrNotFound
		}
		if job.Status != core.QueueStatusProcessing {
			return fmt.Errorf("%w: job %d is %s", storage.ErrInvalidTransition, id, job.Status)
		}

		completed := time.Now().UTC()
		apply(job)
		job.CompletedAt = &completed
		if err := putRecord(tx, key, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// CountPending returns the number of pending jobs.
func (r *IngestionQueueRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		count = countKeys(tx, []byte(ingestPendingPrefix))
		return nil
	}, false)
	return count, err
}

// readIndexedIDs reads up to limit IDs stored as values under an index prefix.
func readIndexedIDs(tx *badger.Txn, prefix []byte, limit int) ([]core.ID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid() && len(ids) < limit; iter.Next() {
		var id core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
