// Package errors defines the error taxonomy surfaced by catalog resolution.
//
// Callers of the resolver only ever observe NotFoundError,
// ServiceUnavailableError or ValidationError. ConflictError is produced by
// the store and absorbed by the resolver.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError means the external source has no such key and no local record matched.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book %q not found", e.Key)
}

// HTTPStatus returns the status an HTTP layer should answer with.
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// NewNotFoundError creates a NotFoundError for key.
func NewNotFoundError(key string) *NotFoundError {
	return &NotFoundError{Key: key}
}

// IsNotFound reports whether err is a NotFoundError (even when wrapped).
func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return errors.As(err, &nfErr)
}

// ServiceUnavailableError means the external source could not be reached,
// timed out or answered with a server error. Callers may retry.
type ServiceUnavailableError struct {
	Source string
	Err    error
}

func (e *ServiceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unavailable", e.Source)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// HTTPStatus returns the status an HTTP layer should answer with.
func (e *ServiceUnavailableError) HTTPStatus() int { return http.StatusServiceUnavailable }

// NewServiceUnavailableError wraps cause as a ServiceUnavailableError for source.
func NewServiceUnavailableError(source string, cause error) *ServiceUnavailableError {
	return &ServiceUnavailableError{Source: source, Err: cause}
}

// IsServiceUnavailable reports whether err means the upstream is unavailable.
// Rate limit rejections count as unavailability.
func IsServiceUnavailable(err error) bool {
	var suErr *ServiceUnavailableError
	return errors.As(err, &suErr) || IsRateLimitError(err)
}

// ConflictError is returned by the store when a write loses a race: a
// duplicate primary key on insert or a stale version on save.
type ConflictError struct {
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %q: %s", e.Key, e.Reason)
}

// HTTPStatus returns the status an HTTP layer should answer with.
func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }

// NewConflictError creates a ConflictError.
func NewConflictError(key, reason string) *ConflictError {
	return &ConflictError{Key: key, Reason: reason}
}

// IsConflict reports whether err is a ConflictError (even when wrapped).
func IsConflict(err error) bool {
	var cErr *ConflictError
	return errors.As(err, &cErr)
}

// ValidationError rejects malformed input before any I/O happens.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// HTTPStatus returns the status an HTTP layer should answer with.
func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError (even when wrapped).
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}

// HTTPStatus maps any error to the status an HTTP layer should use.
func HTTPStatus(err error) int {
	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		return withStatus.HTTPStatus()
	}
	if IsRateLimitError(err) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
