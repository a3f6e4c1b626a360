// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package apperr defines the closed set of domain errors that cross the
// request boundary.
//
// Domain components return *Error values built with the constructors in
// this package. Everything else, including bare infrastructure errors, is
// treated as Internal by Normalize and never reaches a caller verbatim.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind discriminates the error variants.
type Kind int

// Error kinds. The set is closed.
const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindMethodNotAllowed
	KindServiceUnavailable
)

type kindInfo struct {
	name    string
	status  int
	message string
	action  string
}

var kinds = map[Kind]kindInfo{
	KindInternal: {
		name:    "InternalServerError",
		status:  http.StatusInternalServerError,
		message: "An unexpected internal error occurred.",
		action:  "Please contact support.",
	},
	KindValidation: {
		name:    "ValidationError",
		status:  http.StatusBadRequest,
		message: "A validation error has occurred.",
		action:  "Please check the input data.",
	},
	KindNotFound: {
		name:    "NotFoundError",
		status:  http.StatusNotFound,
		message: "The requested resource was not found.",
		action:  "Please check the resource identifier.",
	},
	KindUnauthorized: {
		name:    "UnauthorizedError",
		status:  http.StatusUnauthorized,
		message: "The user is not authenticated.",
		action:  "Please log in and try again.",
	},
	KindMethodNotAllowed: {
		name:    "MethodNotAllowedError",
		status:  http.StatusMethodNotAllowed,
		message: "This method is not allowed for that endpoint.",
		action:  "Check if the HTTP request is valid for this endpoint.",
	},
	KindServiceUnavailable: {
		name:    "ServiceError",
		status:  http.StatusServiceUnavailable,
		message: "Service currently unavailable.",
		action:  "Check that the service is available.",
	},
}

// Name returns the envelope name of the kind.
func (k Kind) Name() string {
	return k.info().name
}

// Status returns the HTTP status code of the kind.
func (k Kind) Status() int {
	return k.info().status
}

func (k Kind) String() string {
	return k.Name()
}

func (k Kind) info() kindInfo {
	if info, ok := kinds[k]; ok {
		return info
	}
	return kinds[KindInternal]
}

// Error is a domain error. It is immutable once constructed.
type Error struct {
	kind    Kind
	message string
	action  string
	cause   error
}

// Option customizes an Error at construction.
type Option func(*Error)

// WithMessage replaces the default message of the kind.
func WithMessage(message string) Option {
	return func(e *Error) { e.message = message }
}

// WithAction replaces the default corrective action of the kind.
func WithAction(action string) Option {
	return func(e *Error) { e.action = action }
}

// WithCause attaches the underlying error. Causes are kept for logging and
// never rendered.
func WithCause(cause error) Option {
	return func(e *Error) { e.cause = cause }
}

// New creates an error of the given kind with the kind's default text.
func New(kind Kind, opts ...Option) *Error {
	info := kind.info()
	e := &Error{kind: kind, message: info.message, action: info.action}
	if _, ok := kinds[kind]; !ok {
		e.kind = KindInternal
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validation reports bad input.
func Validation(message, action string, opts ...Option) *Error {
	return New(KindValidation, append([]Option{WithMessage(message), WithAction(action)}, opts...)...)
}

// NotFound reports that a referenced entity does not exist.
func NotFound(message, action string, opts ...Option) *Error {
	return New(KindNotFound, append([]Option{WithMessage(message), WithAction(action)}, opts...)...)
}

// Unauthorized reports a credential mismatch.
func Unauthorized(message, action string, opts ...Option) *Error {
	return New(KindUnauthorized, append([]Option{WithMessage(message), WithAction(action)}, opts...)...)
}

// MethodNotAllowed reports an unsupported verb or route. Its text is fixed.
func MethodNotAllowed() *Error {
	return New(KindMethodNotAllowed)
}

// ServiceUnavailable reports that a dependency failed.
func ServiceUnavailable(message string, cause error) *Error {
	return New(KindServiceUnavailable, WithMessage(message), WithCause(cause))
}

// Internal wraps an unanticipated failure. Its text is fixed.
func Internal(cause error) *Error {
	return New(KindInternal, WithCause(cause))
}

// Kind returns the variant of the error.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the human readable message.
func (e *Error) Message() string { return e.message }

// Action returns the corrective action text.
func (e *Error) Action() string { return e.action }

// StatusCode returns the HTTP status code of the error.
func (e *Error) StatusCode() int { return e.kind.Status() }

// Error implements error. The cause is included so that logs carry it.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind.Name(), e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind.Name(), e.message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error { return e.cause }

// Envelope is the JSON shape every error is rendered to.
type Envelope struct {
	Name       string `json:"name"`
	Message    string `json:"message"`
	Action     string `json:"action"`
	StatusCode int    `json:"status_code"`
}

// Envelope renders the error.
func (e *Error) Envelope() Envelope {
	return Envelope{
		Name:       e.kind.Name(),
		Message:    e.message,
		Action:     e.action,
		StatusCode: e.kind.Status(),
	}
}

// Normalize converts any error into a domain error suitable for a caller.
// Recognized kinds other than Internal pass through unchanged. Anything
// else, including an existing Internal error, becomes a fresh Internal error
// with the fixed generic text and err as its cause.
func Normalize(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		switch appErr.kind {
		case KindValidation, KindNotFound, KindUnauthorized, KindMethodNotAllowed, KindServiceUnavailable:
			return appErr
		case KindInternal:
		}
	}
	return Internal(err)
}

// IsKind reports whether err carries a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.kind == kind
}
