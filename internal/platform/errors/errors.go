// Package errors provides structured error handling with HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an error, used for logging level and response status.
type ErrorType string

const (
	TypeValidation   ErrorType = "validation"   // 400
	TypeUnauthorized ErrorType = "unauthorized" // 401
	TypeNotFound     ErrorType = "not_found"    // 404
	TypeConflict     ErrorType = "conflict"     // 409
	TypeInternal     ErrorType = "internal"     // 500
	TypeExternal     ErrorType = "external"     // 502
)

// Error is a structured error carrying a type, a client-safe message and an optional cause.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

// ValidationErrorf wraps a cause, typically a domain sentinel, as a validation error.
func ValidationErrorf(cause error, format string, args ...any) *Error {
	return newError(TypeValidation, fmt.Sprintf(format, args...), cause)
}

func UnauthorizedError(message string) *Error {
	return newError(TypeUnauthorized, message, nil)
}

func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

func ConflictError(message string) *Error {
	return newError(TypeConflict, message, nil)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// WithField attaches a context field that is logged and returned to the client.
func (e *Error) WithField(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() ErrorResponse {
	resp := ErrorResponse{Error: e.Message, Type: e.Type}
	if len(e.Context) > 0 {
		resp.Context = e.Context
	}
	return resp
}

// AsStructuredError returns err as an *Error, wrapping unknown errors as internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	return InternalError("internal server error", err)
}

// IsType reports whether err is a structured error of type t.
func IsType(err error, t ErrorType) bool {
	var structuredErr *Error
	return errors.As(err, &structuredErr) && structuredErr.Type == t
}
