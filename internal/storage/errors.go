package storage

import "errors"

// Storage errors shared by all backends.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already
	// exists. Classifications and trades are insert-once.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyEvaluated is returned when marking a trade evaluated a
	// second time. The verdict is written exactly once.
	ErrAlreadyEvaluated = errors.New("trade already evaluated")
)
