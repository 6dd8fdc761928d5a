package domain

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports malformed input: a bad install spec, a missing
// required argument, or an invalid manifest. Rejected before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown plugin or tool name.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NewNotFoundError creates a NotFoundError with a formatted message.
func NewNotFoundError(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports an attempt to install a plugin whose derived name
// is already registered. The existing record is left untouched.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NewConflictError creates a ConflictError with a formatted message.
func NewConflictError(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// TimeoutError reports a backend round-trip that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

// BackendFatalError reports that the backend process exited and can no
// longer serve calls. Callers must fail fast on it instead of waiting for
// per-call timeouts.
type BackendFatalError struct {
	Message string
}

func (e *BackendFatalError) Error() string { return e.Message }

// NewBackendFatalError creates a BackendFatalError with a formatted message.
func NewBackendFatalError(format string, args ...interface{}) *BackendFatalError {
	return &BackendFatalError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsBackendFatal reports whether err is a BackendFatalError.
func IsBackendFatal(err error) bool {
	var target *BackendFatalError
	return errors.As(err, &target)
}
