// Package apierr defines the API-facing error taxonomy and the JSON
// envelope used to report it, shared by the shorten/redirect and auth
// surfaces.
package apierr

import (
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy members from the error handling design.
type Kind string

const (
	BadRequest       Kind = "bad_request"
	Unauthorized     Kind = "unauthorized"
	Forbidden        Kind = "forbidden"
	NotFound         Kind = "not_found"
	Conflict         Kind = "conflict"
	Unprocessable    Kind = "unprocessable"
	Cooldown         Kind = "cooldown"
	AlreadyActive    Kind = "already_active"
	EmailTaken       Kind = "email_taken"
	InvalidOrExpired Kind = "invalid_or_expired"
	Internal         Kind = "internal"
)

// Error is the error type services return; handlers translate it into an
// HTTP status and JSON envelope without inspecting anything else.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func BadRequestf(format string, args ...interface{}) *Error {
	return &Error{Kind: BadRequest, Message: sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...interface{}) *Error {
	return &Error{Kind: Unauthorized, Message: sprintf(format, args...)}
}

func Forbiddenf(format string, args ...interface{}) *Error {
	return &Error{Kind: Forbidden, Message: sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: NotFound, Message: sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: Conflict, Message: sprintf(format, args...)}
}

func Unprocessablef(format string, args ...interface{}) *Error {
	return &Error{Kind: Unprocessable, Message: sprintf(format, args...)}
}

func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: Internal, Message: sprintf(format, args...)}
}

func Cooldownf(format string, args ...interface{}) *Error {
	return &Error{Kind: Cooldown, Message: sprintf(format, args...)}
}

func AlreadyActivef(format string, args ...interface{}) *Error {
	return &Error{Kind: AlreadyActive, Message: sprintf(format, args...)}
}

func InvalidOrExpiredf(format string, args ...interface{}) *Error {
	return &Error{Kind: InvalidOrExpired, Message: sprintf(format, args...)}
}

// EmailTakenErr is the one fixed-message EmailTaken error; unlike the
// other constructors it carries no caller-supplied detail, since the
// message must never confirm which email collided beyond "taken".
func EmailTakenErr() *Error {
	return &Error{Kind: EmailTaken, Message: "Email is already registered"}
}

// status maps a Kind to the HTTP status the surface writes.
var status = map[Kind]int{
	BadRequest:       http.StatusBadRequest,
	Unauthorized:     http.StatusUnauthorized,
	Forbidden:        http.StatusForbidden,
	NotFound:         http.StatusNotFound,
	Conflict:         http.StatusConflict,
	Unprocessable:    http.StatusUnprocessableEntity,
	Cooldown:         http.StatusTooManyRequests,
	AlreadyActive:    http.StatusBadRequest,
	EmailTaken:       http.StatusConflict,
	InvalidOrExpired: http.StatusUnprocessableEntity,
	Internal:         http.StatusInternalServerError,
}

// HTTPStatus returns the status code for err, defaulting to 500 for
// errors that did not originate from this package.
func HTTPStatus(err error) int {
	aerr, ok := err.(*Error)
	if !ok {
		return http.StatusInternalServerError
	}
	if s, ok := status[aerr.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// As extracts an *Error, synthesizing an Internal one for anything else so
// callers never leak raw error strings (which may carry store internals).
func As(err error) *Error {
	if aerr, ok := err.(*Error); ok {
		return aerr
	}
	return &Error{Kind: Internal, Message: "internal error"}
}

func sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
