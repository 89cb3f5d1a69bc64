// Package apperrors defines the error kinds used across the scheduler and
// the propagation helpers built on top of them.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the purposes of retry/surface decisions.
type Kind string

const (
	// KindStorage is a persistence failure. Retried at the operation level
	// with small bounded backoff; fatal if unavailable at startup.
	KindStorage Kind = "storage"
	// KindRemoteScraper is a non-2xx or transport failure from the external
	// scraper. Classified as a fetch failure on the tracker retry path.
	KindRemoteScraper Kind = "remote_scraper"
	// KindScriptFailure is a JS runtime error (throw, timeout, OOM).
	KindScriptFailure Kind = "script_failure"
	// KindClientValidation is a rejected input. Surfaced, never retried.
	KindClientValidation Kind = "client_validation"
	// KindConflict is a uniqueness violation.
	KindConflict Kind = "conflict"
	// KindNotFound is a missing entity on update/delete.
	KindNotFound Kind = "not_found"
)

// Error wraps an underlying cause with a Kind so callers can branch on
// classification without string matching.
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

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// UserMessage extracts the message a caller should present to the end
// user: the wrapped message verbatim when present, "Unknown error"
// otherwise.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Unknown error"
}
