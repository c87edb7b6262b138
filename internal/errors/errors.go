// Package errors provides structured error types for the Fluxtable system.
// Every error carries a category, code, message, and retryable flag so the
// HTTP layer and logs can classify failures without inspecting raw driver
// errors.
package errors

import (
	"errors"
	"fmt"
)

// Category classifies errors by failure mode.
type Category string

const (
	CategoryConnection Category = "CONNECTION"
	CategorySchema     Category = "SCHEMA"
	CategoryValidation Category = "VALIDATION"
	CategoryConstraint Category = "CONSTRAINT"
	CategoryNotFound   Category = "NOT_FOUND"
	CategoryInternal   Category = "INTERNAL"
)

// Error codes for each category.
const (
	// Connection codes
	CodeConnectFailed = "CONNECT_FAILED"
	CodeAuthFailed    = "AUTH_FAILED"

	// Schema codes
	CodeAlterFailed    = "ALTER_FAILED"
	CodeDiscoverFailed = "DISCOVER_FAILED"

	// Validation codes
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeUnsupported       = "UNSUPPORTED"

	// Constraint codes
	CodeDuplicateKey = "DUPLICATE_KEY"

	// Not-found codes
	CodeRecordNotFound = "RECORD_NOT_FOUND"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// StoreError is the structured error type used throughout the system.
type StoreError struct {
	Category  Category
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new StoreError.
func New(category Category, code, message string) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap creates a new StoreError wrapping an existing error.
func Wrap(category Category, code, message string, cause error) *StoreError {
	return &StoreError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a StoreError.
func GetCategory(err error) Category {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// isRetryable determines if a category is worth retrying. Connections may
// come back; validation, constraint, and not-found failures will not.
func isRetryable(category Category) bool {
	return category == CategoryConnection
}

// Convenience constructors for common errors.

func NewConnectionError(code, message string, cause error) *StoreError {
	return Wrap(CategoryConnection, code, message, cause)
}

func NewSchemaError(code, message string, cause error) *StoreError {
	return Wrap(CategorySchema, code, message, cause)
}

func NewValidationError(code, message string) *StoreError {
	return New(CategoryValidation, code, message)
}

func NewConstraintError(message string, cause error) *StoreError {
	return Wrap(CategoryConstraint, CodeDuplicateKey, message, cause)
}

func NewNotFoundError(message string) *StoreError {
	return New(CategoryNotFound, CodeRecordNotFound, message)
}

func NewInternalError(message string, cause error) *StoreError {
	return Wrap(CategoryInternal, CodeUnexpected, message, cause)
}
