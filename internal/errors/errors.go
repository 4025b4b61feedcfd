// Package errors provides the coded domain errors returned by every bookclub operation.
//
// Services return typed errors; handlers map them to HTTP responses:
//
//	if errors.Is(err, errors.ErrPickAlreadyOpen) {
//	    ...
//	}
//
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    status := domainErr.HTTPStatus()
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error class.
type Code string

// Error classes.
const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeConflict     Code = "CONFLICT"
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeStoreFailure Code = "STORE_FAILURE"
	CodeInternal     Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code for an error class.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a class, a reason and an optional cause.
//
// Reason distinguishes named failures inside one class (NOT_YOUR_TURN and
// ALREADY_MEMBER are both reported to callers, but with different classes).
type Error struct {
	Code    Code   `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error with the same code. When the target carries a
// reason, the reason must match as well.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithMessage returns a copy of the error with a different message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: msg, Details: e.Details, cause: e.cause}
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Reason: e.Reason, Message: e.Message, Details: e.Details, cause: err}
}

// Class sentinels for errors.Is.
var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInvalidInput = &Error{Code: CodeInvalidInput, Message: "invalid input"}
	ErrStoreFailure = &Error{Code: CodeStoreFailure, Message: "store unavailable"}
	ErrInternal     = &Error{Code: CodeInternal, Message: "internal error"}
)

// Named failures.
var (
	ErrNotYourTurn     = &Error{Code: CodeUnauthorized, Reason: "NOT_YOUR_TURN", Message: "it is not your turn to pick"}
	ErrPickAlreadyOpen = &Error{Code: CodeConflict, Reason: "PICK_ALREADY_OPEN", Message: "a pick is already open for this club"}
	ErrPickPending     = &Error{Code: CodeConflict, Reason: "PICK_PENDING", Message: "the open pick must be completed before the turn advances"}
	ErrNoMembers       = &Error{Code: CodeConflict, Reason: "NO_MEMBERS", Message: "club has no active members"}
	ErrAlreadyMember   = &Error{Code: CodeConflict, Reason: "ALREADY_MEMBER", Message: "user is already a member of this club"}
	ErrFormerMember    = &Error{Code: CodeConflict, Reason: "FORMER_MEMBER", Message: "user is a former member of this club; reinstate them instead"}
	ErrSlugTaken       = &Error{Code: CodeConflict, Reason: "SLUG_TAKEN", Message: "a club with this name already exists"}
	ErrEmailTaken      = &Error{Code: CodeConflict, Reason: "EMAIL_TAKEN", Message: "email already in use"}
	ErrInvalidMember   = &Error{Code: CodeInvalidInput, Reason: "INVALID_MEMBER", Message: "order must list every active member exactly once"}
	ErrClubNotFound    = &Error{Code: CodeNotFound, Reason: "CLUB_NOT_FOUND", Message: "club not found"}
	ErrMemberNotFound  = &Error{Code: CodeNotFound, Reason: "MEMBER_NOT_FOUND", Message: "member not found"}
	ErrUserNotFound    = &Error{Code: CodeNotFound, Reason: "USER_NOT_FOUND", Message: "user not found"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// InvalidInput creates an invalid input error.
func InvalidInput(msg string) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg}
}

// InvalidInputf creates an invalid input error with a formatted message.
func InvalidInputf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// InvalidInputWithDetails creates an invalid input error carrying field details.
func InvalidInputWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeInvalidInput, Message: msg, Details: details}
}

// Internalf creates an internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// StoreFailure wraps an infrastructure error from the backing store.
func StoreFailure(err error, msg string) *Error {
	return &Error{Code: CodeStoreFailure, Message: msg, cause: err}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// CodeOf returns the class of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether err is a store failure. Only those may be retried
// automatically; every other class is a definitive answer.
func Retryable(err error) bool {
	return err != nil && CodeOf(err) == CodeStoreFailure
}
