package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	return &DocumentRepository{
		backend: backend,
	}, nil
}

// Close is a no-op; documents use caller-supplied IDs.
func (r *DocumentRepository) Close() error {
	return nil
}

// AddDocument stores a document and its chunks in one transaction.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document, chunks ...*core.Chunk) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		existing, err := readRecord[core.Document](tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		if err := putRecord(tx, key, doc); err != nil {
			return err
		}

		for _, chunk := range chunks {
			if chunk.CreatedAt.IsZero() {
				chunk.CreatedAt = now
			}
			if err := putRecord(tx, makeChunkKey(doc.ID, chunk.Position.Index), chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord[core.Document](tx, makeDocumentKey(id))
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

// DeleteDocument removes a document and all of its chunks.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		if _, err := tx.Get(key); err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}

		chunkKeys, err := collectKeys(tx, makeChunkPrefix(id))
		if err != nil {
			return err
		}
		for _, chunkKey := range chunkKeys {
			if err := tx.Delete(chunkKey); err != nil {
				return err
			}
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpdateEnrichment replaces the enrichment metadata of a document and its chunks.
func (r *DocumentRepository) UpdateEnrichment(ctx context.Context, id string, meta *core.EnrichmentMetadata) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := setEnrichment(tx, id, meta); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func setEnrichment(tx *badger.Txn, id string, meta *core.EnrichmentMetadata) error {
	key := makeDocumentKey(id)
	doc, err := readRecord[core.Document](tx, key)
	if err != nil {
		return err
	}
	if doc == nil {
		return storage.ErrNotFound
	}

	doc.Metadata.Enrichment = meta
	doc.UpdatedAt = time.Now().UTC()
	if err := putRecord(tx, key, doc); err != nil {
		return err
	}

	prefix := makeChunkPrefix(id)
	chunks, err := scanRecords[core.Chunk](tx, prefix, prefix)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		chunk.Metadata.Enrichment = meta
		if err := putRecord(tx, makeChunkKey(id, chunk.Position.Index), chunk); err != nil {
			return err
		}
	}
	return nil
}

// GetChunks retrieves a document's chunks ordered by position index.
func (r *DocumentRepository) GetChunks(ctx context.Context, documentID string) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeChunkPrefix(documentID)
		var err error
		chunks, err = scanRecords[core.Chunk](tx, prefix, prefix)
		return err
	}, false)
	if chunks == nil {
		chunks = []*core.Chunk{}
	}
	return chunks, err
}

// UpdateChunks overwrites existing chunks.
func (r *DocumentRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key := makeChunkKey(chunk.DocumentID, chunk.Position.Index)
			if _, err := tx.Get(key); err != nil {
				if err == badger.ErrKeyNotFound {
					return storage.ErrNotFound
				}
				return err
			}
			if err := putRecord(tx, key, chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ListDocumentIDs returns the IDs of every stored document in key order.
func (r *DocumentRepository) ListDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		keys, err := collectKeys(tx, []byte(documentPrefix))
		if err != nil {
			return err
		}
		for _, key := range keys {
			ids = append(ids, string(key[len(documentPrefix):]))
		}
		return nil
	}, false)
	return ids, err
}

// collectKeys copies every key under prefix.
func collectKeys(tx *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys, nil
}
