package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Backend error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrBackend            ErrorCode = "BACKEND_ERROR"
	ErrStructuredOutput   ErrorCode = "STRUCTURED_OUTPUT_INVALID"
	ErrEmptyResponse      ErrorCode = "EMPTY_RESPONSE"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Tool error codes
const (
	ErrToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	ErrToolExecution    ErrorCode = "TOOL_EXECUTION"
	ErrToolValidation   ErrorCode = "TOOL_VALIDATION"
	ErrDelegationFailed ErrorCode = "DELEGATION_FAILED"
)

// Workflow error codes
const (
	ErrFieldAlreadySet ErrorCode = "FIELD_ALREADY_SET"
	ErrStageFailed     ErrorCode = "STAGE_FAILED"
	ErrInvalidState    ErrorCode = "INVALID_STATE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
