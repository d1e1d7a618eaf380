package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// EntityRepository implements storage.EntityRepository for BadgerDB.
type EntityRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.EntityRepository = (*EntityRepository)(nil)

// NewEntityRepository creates a new EntityRepository.
func NewEntityRepository(backend *Backend) (*EntityRepository, error) {
	idSeq, err := backend.GetSequence(entityIDSeq)
	if err != nil {
		return nil, err
	}

	return &EntityRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *EntityRepository) Close() error {
	return r.idSeq.Release()
}

// AddEntities appends entities keyed by source document.
func (r *EntityRepository) AddEntities(ctx context.Context, entities ...*core.ExtractedEntity) ([]*core.ExtractedEntity, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := r.put(tx, entities); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return entities, err
}

func (r *EntityRepository) put(tx *badger.Txn, entities []*core.ExtractedEntity) error {
	now := time.Now().UTC()
	for _, entity := range entities {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		entity.ID = id
		if entity.CreatedAt.IsZero() {
			entity.CreatedAt = now
		}
		if err := putRecord(tx, makeDocScopedKey(entityPrefix, entity.DocumentID, entity.ID), entity); err != nil {
			return err
		}
	}
	return nil
}

// GetEntitiesByDocument retrieves every entity extracted from a document.
func (r *EntityRepository) GetEntitiesByDocument(ctx context.Context, documentID string) ([]*core.ExtractedEntity, error) {
	var entities []*core.ExtractedEntity
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeDocScopedPrefix(entityPrefix, documentID)
		var err error
		entities, err = scanRecords[core.ExtractedEntity](tx, prefix, prefix)
		return err
	}, false)
	return entities, err
}

// CrossReferenceRepository implements storage.CrossReferenceRepository for BadgerDB.
type CrossReferenceRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.CrossReferenceRepository = (*CrossReferenceRepository)(nil)

// NewCrossReferenceRepository creates a new CrossReferenceRepository.
func NewCrossReferenceRepository(backend *Backend) (*CrossReferenceRepository, error) {
	idSeq, err := backend.GetSequence(crossRefIDSeq)
	if err != nil {
		return nil, err
	}

	return &CrossReferenceRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *CrossReferenceRepository) Close() error {
	return r.idSeq.Release()
}

// AddCrossReferences appends cross-references keyed by source document.
func (r *CrossReferenceRepository) AddCrossReferences(ctx context.Context, refs ...*core.CrossReference) ([]*core.CrossReference, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := r.put(tx, refs); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	return refs, err
}

func (r *CrossReferenceRepository) put(tx *badger.Txn, refs []*core.CrossReference) error {
	now := time.Now().UTC()
	for _, ref := range refs {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		ref.ID = id
		if ref.CreatedAt.IsZero() {
			ref.CreatedAt = now
		}
		if err := putRecord(tx, makeDocScopedKey(crossRefPrefix, ref.SourceDocumentID, ref.ID), ref); err != nil {
			return err
		}
	}
	return nil
}

// GetCrossReferencesByDocument retrieves every cross-reference for a source document.
func (r *CrossReferenceRepository) GetCrossReferencesByDocument(ctx context.Context, documentID string) ([]*core.CrossReference, error) {
	var refs []*core.CrossReference
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeDocScopedPrefix(crossRefPrefix, documentID)
		var err error
		refs, err = scanRecords[core.CrossReference](tx, prefix, prefix)
		return err
	}, false)
	return refs, err
}
