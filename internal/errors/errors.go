package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for soberano.
// It carries an error code, category, and severity so callers can map
// failures to HTTP status classes and log them consistently.
type Error struct {
	// Code is the unique error code (e.g., "ERR_403_DOCUMENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Model, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new Error with a formatted message and no cause.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// Returns nil if err is nil.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// CodeOf extracts the error code from an error chain.
// Returns ErrCodeInternal for errors that are not *Error.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsNotFound reports whether the error is a not-found class error
// (missing index, unknown document, or retrieval that matched nothing).
func IsNotFound(err error) bool {
	return IsCode(err, ErrCodeNoIndex) ||
		IsCode(err, ErrCodeDocumentNotFound) ||
		IsCode(err, ErrCodeNoResults)
}

// IsUserError reports whether the error should map to a 4xx response.
func IsUserError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == CategoryValidation
	}
	return false
}
