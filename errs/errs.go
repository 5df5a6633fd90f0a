// Package errs defines the closed error-kind taxonomy shared by the agent
// loop, the ensemble builders, and every conductor strategy, plus the
// sanitization every outgoing error string passes through before it reaches
// a caller.
package errs

import (
	"errors"
	"fmt"

	"github.com/hupe1980/conductormesh/internal/sanitize"
)

// Kind is one of the closed set of error classifications the spec defines.
type Kind string

const (
	InvalidInput        Kind = "invalid-input"
	MissingRequired     Kind = "missing-required"
	DuplicateID         Kind = "duplicate-id"
	NotFound            Kind = "not-found"
	QuorumNotMet        Kind = "quorum-not-met"
	InsufficientOptions Kind = "insufficient-options"
	Cancelled           Kind = "cancelled"
	Timeout             Kind = "timeout"
	BackendFailure      Kind = "backend-failure"
	ToolFailure         Kind = "tool-failure"
	MaxDelegations      Kind = "max-delegations"
)

// Error is the concrete error type carrying a Kind plus an optional
// underlying cause. Its Error() string is always passed through the
// sanitizer so credential-shaped substrings never leak to a caller.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return sanitize.Error(fmt.Sprintf("%s: %s", e.Kind, msg))
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs a bare Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is an *Error of the given kind (recursing through
// wrapped causes via errors.As).
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
