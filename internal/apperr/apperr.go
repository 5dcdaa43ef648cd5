// Package apperr defines the error taxonomy surfaced to callers of realm-sync.
//
// Every user-visible failure carries a Code. Callers match codes with errors.Is against
// the package sentinels (ErrNotFound, ErrUnauthorized, ...), and transports render
// PublicMessage rather than the wrapped internal error.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies an error for callers.
type Code string

const (
	CodeUnauthenticated Code = "unauthenticated"
	CodeUnauthorized    Code = "unauthorized"
	CodeNotFound        Code = "not_found"
	CodeValidation      Code = "validation"
	CodeConflict        Code = "conflict"
	CodeLimit           Code = "limit"
	CodeRateLimited     Code = "rate_limited"
	CodeConfiguration   Code = "configuration"
	CodeAPI             Code = "api"
	CodeInternal        Code = "internal"
)

// Error is a coded error with a short caller-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is.
var (
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrUnauthorized    = &Error{Code: CodeUnauthorized}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrValidation      = &Error{Code: CodeValidation}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrLimit           = &Error{Code: CodeLimit}
	ErrRateLimited     = &Error{Code: CodeRateLimited}
	ErrConfiguration   = &Error{Code: CodeConfiguration}
	ErrAPI             = &Error{Code: CodeAPI}
)

// New returns a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and caller-safe message to err.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// NotFound reports a missing record of the given kind.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, "%s %s not found", kind, id)
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Error {
	return New(CodeValidation, format, args...)
}

// Conflict reports a clash with existing state.
func Conflict(format string, args ...any) *Error {
	return New(CodeConflict, format, args...)
}

// CodeOf returns the code of the outermost *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// PublicMessage returns the short message safe to show a caller. Errors without a
// code never leak their text.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Code == CodeInternal {
		return "internal error"
	}
	if ae.Message != "" {
		return ae.Message
	}
	return defaultMessages[ae.Code]
}

var defaultMessages = map[Code]string{
	CodeUnauthenticated: "authentication required",
	CodeUnauthorized:    "not allowed",
	CodeNotFound:        "not found",
	CodeValidation:      "invalid input",
	CodeConflict:        "conflict",
	CodeLimit:           "usage limit reached",
	CodeRateLimited:     "rate limited",
	CodeConfiguration:   "service misconfigured",
	CodeAPI:             "upstream service error",
}

// HTTPStatus maps a code to the status the HTTP API returns for it.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeLimit, CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
