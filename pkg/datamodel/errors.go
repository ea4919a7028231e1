package datamodel

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger, the supervision service and the provisional store
// matches at most one of them with errors.Is, or is a *BackendError.
var (
	// ErrValidation means the input was rejected before any mutation happened
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means the referenced record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the operation is not allowed in the current state (duplicate id, invalid transition, busy lot)
	ErrConflict = errors.New("conflict")
)

// NewValidationError returns an error wrapping ErrValidation
func NewValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError returns an error wrapping ErrNotFound
func NewNotFoundError(kind string, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// NewConflictError returns an error wrapping ErrConflict
func NewConflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// BackendError carries a failure of the relational backend or of the snapshot RPC.
// Error() returns the backend message unchanged.
type BackendError struct {
	Err error
	Op  string
}

func (e *BackendError) Error() string {
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapBackend marks err as a backend failure of op.
// Errors that already carry a kind are returned as they are.
func WrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// IsBackendError reports whether err is (or wraps) a *BackendError
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsNotFound reports whether err wraps ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
