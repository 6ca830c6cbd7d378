package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated indicates the caller resolved to no workspace.
	ErrUnauthenticated = errors.New("no workspace for caller")
	// ErrNotFound indicates the record is absent or outside the caller's workspace.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates an invariant or state-transition conflict.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)

// ConflictError names the rule that was violated and, when known, the record
// blocking the operation so the caller can offer a resolution path.
type ConflictError struct {
	Reason   string
	Blocking string
}

func (e *ConflictError) Error() string {
	if e.Blocking != "" {
		return fmt.Sprintf("%s: %s (blocked by %s)", ErrConflict, e.Reason, e.Blocking)
	}
	return fmt.Sprintf("%s: %s", ErrConflict, e.Reason)
}

// Unwrap lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict builds a ConflictError.
func Conflict(reason, blocking string) error {
	return &ConflictError{Reason: reason, Blocking: blocking}
}

// Validation wraps ErrValidation with detail.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
