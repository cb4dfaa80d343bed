// Package serviceerr defines the error taxonomy of the gateway and its mapping
// to HTTP status codes.
package serviceerr

import (
	"errors"
	"net/http"
)

type Code string

const (
	// RFC6749 authorization errors
	CodeInvalidRequest         Code = "invalid_request"
	CodeUnauthorizedClient     Code = "unauthorized_client"
	CodeAccessDenied           Code = "access_denied"
	CodeServerError            Code = "server_error"
	CodeTemporarilyUnavailable Code = "temporarily_unavailable"

	// RFC6749 token errors
	CodeInvalidGrant Code = "invalid_grant"

	// Custom codes
	CodeUnknown      Code = "unknown"
	CodeNotFound     Code = "not_found"
	CodeStateExpired Code = "state_expired"
	CodeInvalidState Code = "invalid_state"
)

// Error is a classified failure that can be rendered to an HTTP client.
type Error struct {
	Err         Code
	Description string
}

var (
	ErrInvalidRequest         = &Error{Err: CodeInvalidRequest}
	ErrAccessDenied           = &Error{Err: CodeAccessDenied}
	ErrTemporarilyUnavailable = &Error{Err: CodeTemporarilyUnavailable}
	ErrInvalidGrant           = &Error{Err: CodeInvalidGrant}

	ErrUnauthorized = &Error{Err: CodeUnauthorizedClient, Description: "unauthorized"}
	ErrInternal     = &Error{Err: CodeServerError, Description: "internal server error"}
	ErrUnknown      = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrNotFound     = &Error{Err: CodeNotFound, Description: "not found"}
	ErrStateExpired = &Error{Err: CodeStateExpired, Description: "state expired"}
	ErrInvalidState = &Error{Err: CodeInvalidState, Description: "invalid state"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return string(e.Err) + ": " + e.Description
}

// Is reports whether target carries the same code, so errors with a custom
// description still match the predefined sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Err == e.Err
}

// WithDescription returns a copy of the error with the given description.
func (e *Error) WithDescription(description string) *Error {
	return &Error{Err: e.Err, Description: description}
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeInvalidGrant, CodeInvalidState:
		return http.StatusBadRequest
	case CodeUnauthorizedClient:
		return http.StatusUnauthorized
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeStateExpired:
		return http.StatusGone
	case CodeTemporarilyUnavailable:
		return http.StatusServiceUnavailable
	case CodeServerError, CodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// From extracts the classified error from err. Unclassified errors are
// reported as ErrInternal.
func From(err error) *Error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr
	}

	return ErrInternal
}
