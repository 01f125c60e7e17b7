// Package errors defines the application error taxonomy shared by the
// engine, the repositories, and the HTTP boundary.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an addressed entity does not exist.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeInvalidCron indicates a cron expression was rejected by the evaluator.
	ErrCodeInvalidCron ErrorCode = "invalid_cron_expression"
	// ErrCodeAssignmentFailed indicates a run could not be assigned to a worker.
	ErrCodeAssignmentFailed ErrorCode = "run_assignment_failed"
	// ErrCodeCompletionFailed indicates a run could not be completed by a worker.
	ErrCodeCompletionFailed ErrorCode = "run_completion_failed"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeConflict indicates a conflict with existing data.
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeForeignKey indicates a foreign key constraint violation.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError is a structured application error with a code, message, and
// optional cause. It supports errors.Is and errors.As via Unwrap.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// InvalidCron creates a new InvalidCron error.
func InvalidCron(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidCron, Message: message}
}

// InvalidCronf creates a new InvalidCron error with a formatted message.
func InvalidCronf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeInvalidCron, Message: fmt.Sprintf(format, args...)}
}

// AssignmentFailed creates a new AssignmentFailed error.
func AssignmentFailed(message string) *AppError {
	return &AppError{Code: ErrCodeAssignmentFailed, Message: message}
}

// CompletionFailed creates a new CompletionFailed error.
func CompletionFailed(message string) *AppError {
	return &AppError{Code: ErrCodeCompletionFailed, Message: message}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsInvalidCron checks if an error is an InvalidCron error.
func IsInvalidCron(err error) bool {
	return isCode(err, ErrCodeInvalidCron)
}

// IsAssignmentFailed checks if an error is an AssignmentFailed error.
func IsAssignmentFailed(err error) bool {
	return isCode(err, ErrCodeAssignmentFailed)
}

// IsCompletionFailed checks if an error is a CompletionFailed error.
func IsCompletionFailed(err error) bool {
	return isCode(err, ErrCodeCompletionFailed)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
