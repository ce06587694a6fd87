package types

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR KINDS
// =============================================================================
// Component boundaries return one of these sentinel kinds wrapped with
// context. Callers classify with errors.Is; the tool layer serializes the
// kind name into the error object it hands back.

var (
	// ErrInvalidInput marks schema or constraint violations. Local, never writes.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing entity or a tenant mismatch. The two are
	// deliberately indistinguishable so cross-tenant existence never leaks.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks duplicate ids or invariants violated late.
	ErrConflict = errors.New("conflict")

	// ErrCircularDependency marks a depends_on edge that would close a cycle.
	ErrCircularDependency = errors.New("circular dependency")

	// ErrForbidden marks sensitivity/channel/audience violations that are
	// safe to report as such (same-tenant policy denials).
	ErrForbidden = errors.New("forbidden")

	// ErrDeadlineExceeded marks a caller deadline expiring mid-request.
	ErrDeadlineExceeded = errors.New("deadline exceeded")

	// ErrUnavailable marks storage failures that persisted through retries.
	ErrUnavailable = errors.New("unavailable")

	// ErrInternal marks truly unexpected conditions.
	ErrInternal = errors.New("internal error")
)

// ErrorKind returns the wire name for an error's kind, or "internal" for
// unclassified errors.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCircularDependency):
		return "circular_dependency"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "internal"
	}
}

// InvalidInputf wraps ErrInvalidInput with a formatted message.
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidInput}, args...)...)
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrNotFound}, args...)...)
}
