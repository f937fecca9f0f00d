package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Nudge error code.
type ErrorCode string

const (
	ErrInvalidRequest  ErrorCode = "INVALID_REQUEST" // 400
	ErrNotFound        ErrorCode = "NOT_FOUND"       // 404
	ErrConflict        ErrorCode = "CONFLICT"        // 409
	ErrInternal        ErrorCode = "INTERNAL"        // 500
	ErrDeliveryFailed  ErrorCode = "DELIVERY_FAILED" // 502
	ErrUnauthenticated ErrorCode = "UNAUTHENTICATED" // 403, webhook signature mismatch
)

// NudgeError represents a structured error with code, status, and details.
type NudgeError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *NudgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *NudgeError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *NudgeError {
	return &NudgeError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity of the given kind.
func NewNotFound(kind, identifier string) *NudgeError {
	return &NudgeError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *NudgeError {
	return &NudgeError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewDeliveryFailed creates a 502 error when the SMS gateway rejects a message.
func NewDeliveryFailed(to string, err error) *NudgeError {
	msg := "message delivery failed"
	if err != nil {
		msg = fmt.Sprintf("message delivery failed: %v", err)
	}
	return &NudgeError{
		Code:    ErrDeliveryFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"to": to},
		cause:   err,
	}
}

// NewUnauthenticated creates a 403 error for requests that fail signature checks.
func NewUnauthenticated(msg string) *NudgeError {
	return &NudgeError{
		Code:    ErrUnauthenticated,
		Status:  403,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *NudgeError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &NudgeError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err, or any error it wraps, is a NudgeError with the given code.
func Is(err error, code ErrorCode) bool {
	var nErr *NudgeError
	if stderrors.As(err, &nErr) {
		return nErr.Code == code
	}
	return false
}

// As reports whether err wraps a NudgeError and returns it.
func As(err error) (*NudgeError, bool) {
	var nErr *NudgeError
	if stderrors.As(err, &nErr) {
		return nErr, true
	}
	return nil, false
}
