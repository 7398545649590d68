// Package errors provides custom error types and error handling utilities.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes.
const (
	// Caller errors.
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
	CodeDisabled   = "WORKBENCH_DISABLED"

	// Wiring errors. Fatal, never degraded.
	CodeConfiguration = "CONFIGURATION_ERROR"

	// Run errors.
	CodeEvaluation = "EVALUATION_ERROR"
	CodeSearch     = "SEARCH_ERROR"
	CodeLock       = "LOCK_ERROR"

	// Infrastructure errors.
	CodeInternal    = "INTERNAL_ERROR"
	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
)

// AppError represents an application error with code and details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with an AppError.
func Wrap(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Convenience constructors.

// ValidationError creates a validation error.
func ValidationError(message string) *AppError {
	return New(CodeValidation, message)
}

// NotFoundError creates a not found error for a kind of entity and its id.
func NotFoundError(kind, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s %s not found", kind, id)).
		WithDetail("kind", kind).
		WithDetail("id", id)
}

// ConfigurationError reports a collaborator that was never wired.
func ConfigurationError(message string) *AppError {
	return New(CodeConfiguration, message)
}

// DisabledError reports an operation refused because the workbench is
// switched off.
func DisabledError(operation string) *AppError {
	return New(CodeDisabled, operation+" is not allowed while the workbench is disabled")
}

// EvaluationError wraps a failed metric computation.
func EvaluationError(message string, err error) *AppError {
	return Wrap(CodeEvaluation, message, err)
}

// SearchError wraps a failed call to the search engine.
func SearchError(message string, err error) *AppError {
	return Wrap(CodeSearch, message, err)
}

// LockError wraps a failed run-lock acquire or release.
func LockError(message string, err error) *AppError {
	return Wrap(CodeLock, message, err)
}

// InternalError creates an internal error.
func InternalError(message string, err error) *AppError {
	return Wrap(CodeInternal, message, err)
}

// TimeoutError creates a timeout error for a specific operation.
func TimeoutError(operation string) *AppError {
	message := "operation timed out"
	if operation != "" {
		message = fmt.Sprintf("%s timed out", operation)
	}
	return New(CodeTimeout, message)
}

// ServiceUnavailableError creates a service unavailable error.
func ServiceUnavailableError(service string) *AppError {
	message := "service unavailable"
	if service != "" {
		message = fmt.Sprintf("%s is unavailable", service)
	}
	return New(CodeUnavailable, message)
}

// Code returns the code of the first AppError in err's chain, or "" if there is none.
func Code(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound checks if error is a not found error.
func IsNotFound(err error) bool {
	return Code(err) == CodeNotFound
}

// IsValidation checks if error is a validation error.
func IsValidation(err error) bool {
	return Code(err) == CodeValidation
}

// IsConfiguration checks if error is a configuration error.
func IsConfiguration(err error) bool {
	return Code(err) == CodeConfiguration
}

// IsDisabled checks if error reports a disabled workbench.
func IsDisabled(err error) bool {
	return Code(err) == CodeDisabled
}

// IsLock checks if error is a lock error.
func IsLock(err error) bool {
	return Code(err) == CodeLock
}
