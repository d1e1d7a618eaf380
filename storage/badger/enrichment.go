package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

var _ storage.EnrichmentWriter = (*Store)(nil)

// SaveEnrichment appends entities and cross-references and records meta on
// the document and its chunks in one transaction. A missing document
// returns storage.ErrNotFound and writes nothing.
func (s *Store) SaveEnrichment(ctx context.Context, documentID string, entities []*core.ExtractedEntity, refs []*core.CrossReference, meta *core.EnrichmentMetadata) error {
	return s.Backend.WithTx(func(tx *badger.Txn) error {
		if err := s.Entities.put(tx, entities); err != nil {
			return err
		}
		if err := s.CrossReferences.put(tx, refs); err != nil {
			return err
		}
		if err := setEnrichment(tx, documentID, meta); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
