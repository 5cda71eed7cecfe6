package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure surfaced to callers.
type ErrorCode string

const (
	ErrInvalidParameter ErrorCode = "INVALID_PARAMETER" // 400
	ErrNotFound         ErrorCode = "NOT_FOUND"         // 404
	ErrInvalidState     ErrorCode = "INVALID_STATE"     // 409
	ErrNotEnabled       ErrorCode = "NOT_ENABLED"       // 503
	ErrUploadTransport  ErrorCode = "UPLOAD_TRANSPORT"  // 502, recorded on the upload, never returned by Schedule
	ErrInternal         ErrorCode = "INTERNAL"          // 500
)

// AppError is a structured error with a code, an HTTP-equivalent status and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidParameter creates a 400 error for missing or invalid caller input.
func NewInvalidParameter(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidParameter,
		Status:  http.StatusBadRequest,
		Message: msg,
	}
}

// NewInvalidState creates a 409 error for an operation the current state forbids.
func NewInvalidState(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidState,
		Status:  http.StatusConflict,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a capture that does not exist.
func NewNotFound(id string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("capture not found: %s", id),
		Details: map[string]any{"id": id},
	}
}

// NewNotEnabled creates a 503 error when uploads are switched off.
func NewNotEnabled(feature string) *AppError {
	return &AppError{
		Code:    ErrNotEnabled,
		Status:  http.StatusServiceUnavailable,
		Message: fmt.Sprintf("%s is not enabled", feature),
	}
}

// NewUploadTransport wraps a network failure or a non-200 collector response.
func NewUploadTransport(statusCode int, msg string, cause error) *AppError {
	return &AppError{
		Code:    ErrUploadTransport,
		Status:  http.StatusBadGateway,
		Message: msg,
		Details: map[string]any{"status_code": statusCode},
		Err:     cause,
	}
}

// NewInternal creates a 500 error for unexpected failures.
func NewInternal(err error) *AppError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  http.StatusInternalServerError,
		Message: msg,
		Err:     err,
	}
}

// Is reports whether err is, or wraps, an AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As returns the AppError carried by err, converting anything else to INTERNAL.
func As(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewInternal(err)
}
