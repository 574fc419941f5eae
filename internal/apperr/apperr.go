// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package apperr defines the error kinds that cross the HTTP boundary.
// Services return *Error values, usually wrapped with fmt.Errorf("...: %w"),
// and the HTTP error handler turns them into status codes and error codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the client.
type Kind int

const (
	Internal Kind = iota
	Validation
	Unauthorized
	Forbidden
	NotFound
	Conflict
	Transient
	DependencyUnavailable
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Transient:
		return http.StatusTooManyRequests
	case DependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the machine-readable error code for the kind.
func (k Kind) Code() string {
	switch k {
	case Validation:
		return "VALIDATION_ERROR"
	case Unauthorized:
		return "UNAUTHORIZED"
	case Forbidden:
		return "FORBIDDEN"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Transient:
		return "RATE_LIMIT"
	case DependencyUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is an error with a kind and a client-safe message.
type Error struct { //nolint:govet // fieldalignment: readability over optimization
	Kind    Kind
	Message string
	// Fields holds per-field validation messages keyed by JSON field name.
	Fields map[string]string
	Err    error

	sentinel *Error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel a copy was made from by Wrap. Sentinels are
// compared by identity, so two of them may share a public message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.sentinel != nil && e.sentinel == t.origin()
}

func (e *Error) origin() *Error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a cause to a copy of the sentinel.
func Wrap(sentinel *Error, cause error) *Error {
	cp := *sentinel
	cp.Err = cause
	cp.sentinel = sentinel.origin()
	return &cp
}

// WithFields attaches per-field messages to a copy of the sentinel.
func WithFields(sentinel *Error, fields map[string]string) *Error {
	cp := *sentinel
	cp.Fields = fields
	cp.sentinel = sentinel.origin()
	return &cp
}

// ValidationFields creates a validation error with per-field messages.
func ValidationFields(message string, fields map[string]string) *Error {
	return &Error{Kind: Validation, Message: message, Fields: fields}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the first *Error in err's chain. Errors without
// one are Internal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Common errors shared by several services.
var (
	ErrUnauthorized = New(Unauthorized, "authentication required")
	ErrNotFound     = New(NotFound, "resource not found")
	ErrBusy         = New(Transient, "the service is busy, please retry")
	ErrInternal     = New(Internal, "internal server error")
)
