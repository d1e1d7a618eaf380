package badger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

const (
	defaultSequenceBandwidth = 100

	// gcDiscardRatio is the share of stale data a value log file needs
	// before badger rewrites it.
	gcDiscardRatio = 0.5
)

// Backend is the badger database shared by every repository.
type Backend struct {
	db       *badger.DB
	inMemory bool
	logger   *slog.Logger
}

// slogAdapter routes badger's printf-style logging into slog.
type slogAdapter struct{ *slog.Logger }

var _ badger.Logger = slogAdapter{}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// OpenBackend opens the database in dir, creating the directory if needed.
// With inMemory set dir is ignored and nothing touches the disk.
func OpenBackend(dir string, inMemory bool) (*Backend, error) {
	logger := slog.Default().With("component", "badger")

	opts := badger.DefaultOptions("").WithInMemory(true)
	if !inMemory {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(slogAdapter{logger}).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", dir, err)
	}
	return &Backend{db: db, inMemory: inMemory, logger: logger}, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func (b *Backend) Close() error { return b.db.Close() }
func (b *Backend) IsClosed() bool { return b.db.IsClosed() }

// CollectGarbage rewrites value log files until badger finds nothing left
// to reclaim. It returns the number of files rewritten. In-memory databases
// have no value log and always report zero.
func (b *Backend) CollectGarbage() (int, error) {
	if b.inMemory {
		return 0, nil
	}
	if b.db.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	rewritten := 0
	for {
		err := b.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewritten++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			return rewritten, nil
		default:
			return rewritten, err
		}
	}
}

// RunGC calls CollectGarbage every interval until ctx is done. Failures are
// logged and do not stop the loop.
func (b *Backend) RunGC(ctx context.Context, interval time.Duration) error {
	if b.inMemory {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			rewritten, err := b.CollectGarbage()
			if err != nil {
				b.logger.Warn("value log GC failed", "err", err)
				continue
			}
			if rewritten > 0 {
				b.logger.Debug("value log GC", "rewritten", rewritten)
			}
		}
	}
}

// WithTx runs fn in a transaction that is always discarded afterwards.
// Writers must commit inside fn.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// GetSequence leases IDs for the sequence stored under name.
func (b *Backend) GetSequence(name string) (*badger.Sequence, error) {
	return b.db.GetSequence([]byte(name), defaultSequenceBandwidth)
}

// nextID returns the next non-zero value of a sequence.
func nextID(seq *badger.Sequence) (core.ID, error) {
	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// A fresh sequence starts at 0, which core reserves for "no ID".
	if next == 0 {
		next, err = seq.Next()
		if err != nil {
			return 0, err
		}
	}
	return core.ID(next), nil
}

// putRecord encodes record and stores it under key.
func putRecord[T any](tx *badger.Txn, key []byte, record *T) error {
	value, err := storage.Marshal(record)
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// readRecord loads and decodes the record stored under key.
// Returns nil, nil if the key doesn't exist.
func readRecord[T any](tx *badger.Txn, key []byte) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var record *T
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.Unmarshal[T](val)
		return err
	})
	return record, err
}

// scanRecords decodes every record whose key starts with prefix, beginning at
// seek (which must itself share the prefix), in key order.
func scanRecords[T any](tx *badger.Txn, prefix, seek []byte) ([]*T, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var results []*T
	for iter.Seek(seek); iter.Valid(); iter.Next() {
		var record *T
		err := iter.Item().Value(func(val []byte) error {
			var err error
			record, err = storage.Unmarshal[T](val)
			return err
		})
		if err != nil {
			return nil, err
		}
		results = append(results, record)
	}
	return results, nil
}

// countKeys counts keys under prefix without fetching values.
func countKeys(tx *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	count := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		count++
	}
	return count
}

// commitClaim commits a claim transaction, reporting a lost race as
// storage.ErrAlreadyClaimed.
func commitClaim(tx *badger.Txn) error {
	if err := tx.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return storage.ErrAlreadyClaimed
		}
		return err
	}
	return nil
}
