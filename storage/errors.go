package storage

import "errors"

// Lookup and write errors.
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvalidQuery rejects empty collections, non-positive limits and
	// similar malformed arguments.
	ErrInvalidQuery = errors.New("invalid query parameters")
)

// Backend errors.
var (
	ErrStorageClosed       = errors.New("storage is closed")
	ErrSerializationFailed = errors.New("serialization failed")
	ErrTruncatedData       = errors.New("truncated data")
)

// Queue errors.
var (
	// ErrAlreadyClaimed is returned by Claim when the item left the pending
	// state, including when a concurrent worker won the claim.
	ErrAlreadyClaimed = errors.New("queue item already claimed")

	// ErrInvalidTransition is returned by Complete and Fail for items that are
	// not processing.
	ErrInvalidTransition = errors.New("invalid queue status transition")
)
