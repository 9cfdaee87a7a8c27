package moneta

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned when a remote call lacks a usable
	// signed-in session
	ErrAuthRequired = errors.New("authentication required")

	// ErrSubscriptionFailed is returned when the live feed fails
	ErrSubscriptionFailed = errors.New("subscription failed")

	// ErrPersistence is reported when a single store write fails
	ErrPersistence = errors.New("persistence failed")

	// ErrLoadTimeout is reported when loading exceeds its bound
	ErrLoadTimeout = errors.New("load timed out")

	// ErrNotFound is returned when a transaction does not exist
	ErrNotFound = errors.New("transaction not found")

	// ErrClosed is returned when the view model has been disposed
	ErrClosed = errors.New("view model closed")
)

// Error represents a store or subscription failure with context
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches target
func (e *Error) Is(target error) bool {
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}

	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code
}

// NewError creates a new error
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewPersistenceError tags a failed store write. The sentinel is chained
// alongside the store's own error, so both IsPersistenceError and checks
// against the underlying cause keep working.
func NewPersistenceError(op string, err error) *Error {
	return &Error{
		Code:    "persistence_error",
		Message: op + " failed",
		Err:     fmt.Errorf("%w: %w", ErrPersistence, err),
	}
}

// IsPersistenceError checks if error came from a store write
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsFallbackError checks if error should flip the source to local mode
func IsFallbackError(err error) bool {
	return errors.Is(err, ErrSubscriptionFailed) || errors.Is(err, ErrAuthRequired)
}
