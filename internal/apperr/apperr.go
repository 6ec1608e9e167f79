// Package apperr provides the typed errors returned by the analysis pipeline.
//
// Every failure that leaves the pipeline carries a machine-readable Kind and a
// human-readable message. Callers branch on the kind with errors.Is against the
// sentinels below, or with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure.
type Kind string

const (
	KindInput           Kind = "INPUT_ERROR"
	KindNotFound        Kind = "NOT_FOUND"
	KindNoReferenceData Kind = "NO_REFERENCE_DATA"
	KindExtraction      Kind = "EXTRACTION_ERROR"
	KindInternal        Kind = "INTERNAL_ERROR"
)

// Error is a pipeline failure with a kind, a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is. Do not return these directly; use New or Wrap.
var (
	ErrInput           = &Error{Kind: KindInput, Message: "invalid input"}
	ErrNotFound        = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNoReferenceData = &Error{Kind: KindNoReferenceData, Message: "no reference data"}
	ErrExtraction      = &Error{Kind: KindExtraction, Message: "extraction failed"}
	ErrInternal        = &Error{Kind: KindInternal, Message: "internal error"}
)

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind with cause attached.
func Wrap(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the message of the first *Error in err's chain, or err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
