// Package apperr defines the closed set of error kinds the system surfaces,
// so the HTTP layer can map any error back to a status code without
// inspecting free-form messages.
package apperr

import "errors"

// Kind is one of the six error kinds the system ever produces.
type Kind string

const (
	RepositoryFailure Kind = "RepositoryFailure"
	ConnectorFailure  Kind = "ConnectorFailure"
	ValidationFailure Kind = "ValidationFailure"
	NotFound          Kind = "NotFound"
	RateLimited       Kind = "RateLimited"
	ConfigFailure     Kind = "ConfigFailure"
)

// Error pairs a Kind with a message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind, wrapping cause. Returns nil if
// cause is nil.
func Wrap(kind Kind, cause error, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to RepositoryFailure for any
// error that wasn't constructed through this package -- a defensive default
// since repository/connector code is the typical unclassified source.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return RepositoryFailure
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
