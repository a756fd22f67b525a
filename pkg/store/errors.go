package store

import "errors"

// Standard store error values that all adapters use.
var (
	// ErrNotFound indicates a single-row lookup matched nothing. Callers that
	// treat absence as a valid result check for it with IsNotFound.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates an operation on a store or feed that has been
	// closed.
	ErrClosed = errors.New("store is closed")
)

// IsNotFound checks if an error indicates an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
