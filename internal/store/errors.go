package store

import "errors"

// Domain-specific errors for store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("store: connection failed")

	// ErrWriteFailed is returned when a write still fails after the
	// engine's internal reconnection attempts are exhausted.
	ErrWriteFailed = errors.New("store: write failed")

	// ErrSchemaFailed is returned when idempotent schema setup fails.
	ErrSchemaFailed = errors.New("store: schema setup failed")

	// ErrUnsupportedRecord is returned when WriteImmediate receives a
	// record type it has no statement for.
	ErrUnsupportedRecord = errors.New("store: unsupported record type")
)
