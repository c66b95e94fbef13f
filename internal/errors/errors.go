package errors

import (
	"fmt"
)

// KeepError is the structured error type for Keeprag.
// It carries a stable code for classification, an optional cause for
// error-chain support, and a retryable flag derived from the code.
type KeepError struct {
	// Code is the unique error code (e.g., "ERR_302_EMBED_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Model, etc.).
	Category Category

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface. The cause is included so a surfaced
// message carries the reason, not just the classification. Wrap sets the
// message to the cause text, in which case it is not repeated.
func (e *KeepError) Error() string {
	if e.Cause != nil && e.Message != e.Cause.Error() {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *KeepError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with KeepError.
func (e *KeepError) Is(target error) bool {
	if t, ok := target.(*KeepError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *KeepError) WithDetail(key, value string) *KeepError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new KeepError with the given code and message.
// Category and retryable flag are derived from the code.
func New(code string, message string, cause error) *KeepError {
	return &KeepError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KeepError from an existing error.
// The error's message becomes the KeepError message.
func Wrap(code string, err error) *KeepError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a KeepError with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ke, ok := err.(*KeepError); ok {
		return ke.Retryable
	}
	return false
}

// GetCode extracts the error code from a KeepError.
// Returns empty string if not a KeepError.
func GetCode(err error) string {
	if ke, ok := err.(*KeepError); ok {
		return ke.Code
	}
	return ""
}

// GetCategory extracts the category from a KeepError.
// Returns empty string if not a KeepError.
func GetCategory(err error) Category {
	if ke, ok := err.(*KeepError); ok {
		return ke.Category
	}
	return ""
}
