package reference

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// Validation errors, one per rejected input.
var (
	ErrEmptyID         = errors.New("id is required")
	ErrEmptyTitle      = errors.New("title is required")
	ErrEmptyAuthors    = errors.New("authors are required")
	ErrInvalidDate     = errors.New("publication date must be YYYY/M/D, YYYY-M-D or YYYY")
	ErrInvalidType     = errors.New("type must be journal or conference")
	ErrEmptyVenue      = errors.New("venue name is required")
	ErrInvalidEmail    = errors.New("email is malformed")
	ErrEmptyAuthorName = errors.New("author first or last name is required")
)

// ErrNotFound is returned when a lookup by id has no record.
var ErrNotFound = errors.New("not found")

// ValidationError describes rejected caller input. Nothing is committed when one
// is returned.
type ValidationError struct {
	Field  string
	Reason string
	err    error
}

// NewValidationError wraps one of the sentinel errors above with field context.
func NewValidationError(sentinel error, field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, err: sentinel}
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.err }

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// StorageError reports a failed bulk import or export. The in-memory store is
// left untouched when one is returned from an import.
type StorageError struct {
	Op   string // export, import
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
