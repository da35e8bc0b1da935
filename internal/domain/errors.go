package domain

import (
	"errors"
	"fmt"
)

// Kind classifies why a core operation failed, matching the five kinds
// the propagation and aggregation paths are allowed to produce.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindInvalid   Kind = "invalid"
	KindConflict  Kind = "conflict"
	KindUpstream  Kind = "upstream"
	KindCancelled Kind = "cancelled"
)

// Error wraps a Kind and an optional cause. Callers branch on Kind via
// errors.As, not on string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error { return NewError(KindNotFound, message, nil) }

func Invalid(message string) *Error { return NewError(KindInvalid, message, nil) }

func Conflict(message string) *Error { return NewError(KindConflict, message, nil) }

func Upstream(message string, cause error) *Error { return NewError(KindUpstream, message, cause) }

func Cancelled(message string) *Error { return NewError(KindCancelled, message, nil) }

// IsKind reports whether err, or something it wraps, is a *Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
