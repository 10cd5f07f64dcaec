package storage

import "errors"

// Errors shared by the warehouse, ledger and memory backends.
var (
	// ErrNotFound is returned when a requested run or aggregate does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a run id is written twice.
	// Runs and their aggregates are append-only.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
