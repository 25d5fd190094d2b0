package history

import "errors"

// Domain-specific errors for history operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidEntry is returned when a record is missing required fields.
	ErrInvalidEntry = errors.New("history: invalid entry")

	// ErrQueryFailed is returned when a read operation fails.
	ErrQueryFailed = errors.New("history: query failed")
)
