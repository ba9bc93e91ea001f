package queue

import "errors"

var (
	// ErrNotFound indicates no tracked item matches the fingerprint or prefix.
	ErrNotFound = errors.New("tracked item not found")

	// ErrAmbiguousPrefix indicates a fingerprint prefix matches several items.
	ErrAmbiguousPrefix = errors.New("fingerprint prefix is ambiguous")

	// ErrInvalidTransition indicates a status change outside the lifecycle
	// table, or a compare-and-set whose expected status no longer holds.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)
