package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned by mutations when no store is configured.
	ErrNotConfigured = errors.New("store not configured")
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when inserting a record whose ID is taken.
	ErrConflict = errors.New("record already exists")
	// ErrStale is returned when a record changed between read and update.
	ErrStale = errors.New("record modified concurrently")
	// ErrValidation wraps every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError describes an invalid draft or patch.
type ValidationError struct {
	Entity  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func validationErrorf(entity, field, format string, args ...any) error {
	return &ValidationError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// RemoteError reports a failure returned by a remote store.
type RemoteError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: remote status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: remote status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *RemoteError) Unwrap() error { return e.Err }
