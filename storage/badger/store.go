package badger

import "errors"

// Store bundles every repository of the pipeline on one backend.
type Store struct {
	Backend         *Backend
	Documents       *DocumentRepository
	EnrichmentQueue *EnrichmentQueueRepository
	IngestionQueue  *IngestionQueueRepository
	Entities        *EntityRepository
	CrossReferences *CrossReferenceRepository
	Logs            *LogRepository
	Metrics         *MetricsRepository
	Corpus          *CorpusRepository
}

// OpenStore opens a backend at filePath and creates all repositories on it.
func OpenStore(filePath string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(filePath, inMemory)
	if err != nil {
		return nil, err
	}

	s := &Store{Backend: backend}
	if err := s.init(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewMemoryStore opens a store that lives only in memory. The data is gone
// after Close.
func NewMemoryStore() (*Store, error) {
	return OpenStore("", true)
}

func (s *Store) init() error {
	var err error
	if s.Documents, err = NewDocumentRepository(s.Backend); err != nil {
		return err
	}
	if s.EnrichmentQueue, err = NewEnrichmentQueueRepository(s.Backend); err != nil {
		return err
	}
	if s.IngestionQueue, err = NewIngestionQueueRepository(s.Backend); err != nil {
		return err
	}
	if s.Entities, err = NewEntityRepository(s.Backend); err != nil {
		return err
	}
	if s.CrossReferences, err = NewCrossReferenceRepository(s.Backend); err != nil {
		return err
	}
	if s.Logs, err = NewLogRepository(s.Backend); err != nil {
		return err
	}
	if s.Metrics, err = NewMetricsRepository(s.Backend); err != nil {
		return err
	}
	if s.Corpus, err = NewCorpusRepository(s.Backend); err != nil {
		return err
	}
	return nil
}

// Close releases every repository and then closes the backend.
func (s *Store) Close() error {
	var errs []error
	closers := []interface{ Close() error }{}
	if s.Documents != nil {
		closers = append(closers, s.Documents)
	}
	if s.EnrichmentQueue != nil {
		closers = append(closers, s.EnrichmentQueue)
	}
	if s.IngestionQueue != nil {
		closers = append(closers, s.IngestionQueue)
	}
	if s.Entities != nil {
		closers = append(closers, s.Entities)
	}
	if s.CrossReferences != nil {
		closers = append(closers, s.CrossReferences)
	}
	if s.Logs != nil {
		closers = append(closers, s.Logs)
	}
	if s.Metrics != nil {
		closers = append(closers, s.Metrics)
	}
	if s.Corpus != nil {
		closers = append(closers, s.Corpus)
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if !s.Backend.IsClosed() {
		if err := s.Backend.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
