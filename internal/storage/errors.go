package storage

import "errors"

// Storage errors for ledger stores.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose id already exists.
	// Records are immutable once written.
	ErrDuplicateKey = errors.New("duplicate key: records are immutable")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
