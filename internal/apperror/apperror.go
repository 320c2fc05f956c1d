// Package apperror defines the error kinds shared by every layer.
//
// Services return these; only the HTTP layer turns them into status codes.
// Each constructor wraps one sentinel so callers can branch with errors.Is
// no matter how many times the error has been wrapped with fmt.Errorf("%w").
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUpload       = errors.New("upload failed")
	ErrInternal     = errors.New("internal error")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotFoundMessage is NotFound with a caller-chosen message, for lookups that
// are not keyed by id (e.g. login by username or email).
func NotFoundMessage(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field (username, email).
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Unauthorized covers bad credentials and invalid, stale or reused tokens.
// HTTP handlers map this to 401.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// UploadFailed is returned when the media store produced no URL for a file.
func UploadFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrUpload,
		Message: message,
		Field:   field,
	}
}

// Internal wraps an unexpected failure. The cause is kept for logs via
// errors.Unwrap chains but never shown to clients.
func Internal(message string, cause error) *AppError {
	err := ErrInternal
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInternal, cause)
	}
	return &AppError{
		Err:     err,
		Message: message,
	}
}
