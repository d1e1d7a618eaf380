package badger

import (
	"context"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CorpusRepository implements storage.CorpusRepository for BadgerDB.
// It also serves as the enrichment engine's corpus matcher.
type CorpusRepository struct {
	backend *Backend
}

var _ storage.CorpusRepository = (*CorpusRepository)(nil)

// NewCorpusRepository creates a new CorpusRepository.
func NewCorpusRepository(backend *Backend) (*CorpusRepository, error) {
	return &CorpusRepository{
		backend: backend,
	}, nil
}

// Close is a no-op; corpus records use derived IDs.
func (r *CorpusRepository) Close() error {
	return nil
}

// AddRecords stores corpus records, replacing records with the same collection and ID.
func (r *CorpusRepository) AddRecords(ctx context.Context, records ...*core.CorpusRecord) ([]*core.CorpusRecord, error) {
	for _, record := range records {
		if err := core.ValidateCorpusRecord(record); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, record := range records {
			if record.ID == "" {
				record.ID = core.IDFromContent(record.Collection + ":" + foldName(record.Name)).String()
			}
			if record.InsertedAt.IsZero() {
				record.InsertedAt = now
			}
			if err := putRecord(tx, makeCorpusKey(record.Collection, record.ID), record); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	return records, err
}

// GetRecord retrieves a corpus record.
func (r *CorpusRepository) GetRecord(ctx context.Context, collection, id string) (*core.CorpusRecord, error) {
	var result *core.CorpusRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord[core.CorpusRecord](tx, makeCorpusKey(collection, id))
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

// FuzzyFind scores every record of a collection against query by name and
// aliases and returns the topK best non-zero matches.
func (r *CorpusRepository) FuzzyFind(ctx context.Context, query, collection string, topK int) ([]core.CorpusMatch, error) {
	if topK <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	folded := foldName(query)
	if folded == "" {
		return []core.CorpusMatch{}, nil
	}

	var matches []core.CorpusMatch
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makeCorpusPrefix(collection)
		records, err := scanRecords[core.CorpusRecord](tx, prefix, prefix)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			best := nameScore(folded, foldName(record.Name))
			for _, alias := range record.Aliases {
				best = max(best, nameScore(folded, foldName(alias)))
			}
			if best > 0 {
				matches = append(matches, core.CorpusMatch{Record: record, MatchScore: best})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b core.CorpusMatch) int {
		if a.MatchScore > b.MatchScore {
			return -1
		}
		if a.MatchScore < b.MatchScore {
			return 1
		}
		return strings.Compare(a.Record.Name, b.Record.Name)
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	if matches == nil {
		matches = []core.CorpusMatch{}
	}
	return matches, nil
}

// CountRecords returns the number of records in a collection.
func (r *CorpusRepository) CountRecords(ctx context.Context, collection string) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		count = countKeys(tx, makeCorpusPrefix(collection))
		return nil
	}, false)
	return count, err
}

// foldName lowercases a name, strips diacritics and punctuation and collapses whitespace.
func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// nameScore rates how closely two folded names match in [0,1].
// Exact matches score 1, containment scores by length ratio and anything
// else by token overlap (Dice coefficient).
func nameScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter := len([]rune(a))
		longer := len([]rune(b))
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	matches := 0
	for _, at := range aTokens {
		if slices.Contains(bTokens, at) {
			matches++
		}
	}
	return float64(matches*2) / float64(len(aTokens)+len(bTokens))
}
