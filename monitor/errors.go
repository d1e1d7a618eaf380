package monitor

import "errors"

var (
	// ErrMetricsRepositoryRequired is returned when a metrics repository is not provided.
	ErrMetricsRepositoryRequired = errors.New("metrics repository required")

	// ErrLogRepositoryRequired is returned when a log repository is not provided.
	ErrLogRepositoryRequired = errors.New("log repository required")

	// ErrQueueRepositoryRequired is returned when an enrichment queue repository is not provided.
	ErrQueueRepositoryRequired = errors.New("enrichment queue repository required")
)
