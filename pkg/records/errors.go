package records

import (
	"errors"
	"fmt"
)

// FetchError wraps a failed read with the entity kind it was for.
type FetchError struct {
	Kind string // Entity kind label (e.g., "templates")
	Err  error  // Underlying error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewFetchError(kind string, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// DeleteError wraps a failed delete with the entity kind and id.
type DeleteError struct {
	Kind string
	ID   string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

func NewDeleteError(kind, id string, err error) *DeleteError {
	return &DeleteError{Kind: kind, ID: id, Err: err}
}

// NotFoundError indicates a record (or a step within one) that the operation
// required was absent. It is used only where absence is actionable; plain
// lookups report absence as a valid empty result instead.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound checks if an error indicates an absent record or step.
func IsNotFound(err error) bool {
	var notFound *NotFoundError

	return errors.As(err, &notFound)
}
