// Package apperr defines the error taxonomy shared by all engine packages.
//
// Four categories matter to callers:
//   - Validation: malformed input, fix and resubmit, never retried
//   - PreconditionFailed: wrong state or wrong caller for a transition
//   - Conflict: a uniqueness guarantee rejected a concurrent write
//   - Transient: store hiccup, retried internally then surfaced
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition indicates the operation is not legal in the current
	// state or for the current caller.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConflict indicates a uniqueness violation under concurrency,
	// e.g. two lock attempts racing for the same problem.
	ErrConflict = errors.New("conflict")

	// ErrTransient indicates a store read/write hiccup that may succeed
	// on retry.
	ErrTransient = errors.New("transient store error")
)

// Validationf wraps ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Preconditionf wraps ErrPrecondition with a caller-facing message.
func Preconditionf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrPrecondition}, args...)...)
}

// Conflictf wraps ErrConflict with a caller-facing message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConflict}, args...)...)
}

// Transientf wraps ErrTransient with context about the failed operation.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTransient}, args...)...)
}

// IsRetryable reports whether err should be retried by the internal
// bounded-retry path. Only transient store errors qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
