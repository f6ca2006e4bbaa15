package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/veecodes14/ride-hailing/internal/domain/ride"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error constructors

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest, Err: err}
}

// Unauthorized creates a 401 error
func Unauthorized(message string, err error) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized, Err: err}
}

// Forbidden creates a 403 error
func Forbidden(message string, err error) *AppError {
	return &AppError{Code: "FORBIDDEN", Message: message, Status: http.StatusForbidden, Err: err}
}

// NotFound creates a 404 error
func NotFound(message string, err error) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound, Err: err}
}

// Conflict creates a 409 error
func Conflict(message string, err error) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict, Err: err}
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: err}
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return &AppError{Code: "SERVICE_UNAVAILABLE", Message: message, Status: http.StatusServiceUnavailable, Err: err}
}

// FromDomain maps a core error to its transport representation. State
// conflicts are expected under concurrency; they map to 409 with a code the
// caller can branch on, and are never treated as server failures.
func FromDomain(err error) *AppError {
	switch {
	case errors.Is(err, ride.ErrRideNotFound):
		return &AppError{Code: "NOT_FOUND", Message: "Ride not found", Status: http.StatusNotFound, Err: err}
	case errors.Is(err, ride.ErrAlreadyClaimed):
		return &AppError{Code: "ALREADY_CLAIMED", Message: "Ride was claimed by another driver", Status: http.StatusConflict, Err: err}
	case errors.Is(err, ride.ErrStaleVersion):
		return &AppError{Code: "STALE_VERSION", Message: "Ride changed concurrently, retry with a fresh read", Status: http.StatusConflict, Err: err}
	case errors.Is(err, ride.ErrInvalidTransition):
		return &AppError{Code: "INVALID_TRANSITION", Message: "Ride is not in a state that permits this operation", Status: http.StatusConflict, Err: err}
	case errors.Is(err, ride.ErrUnauthorized):
		return &AppError{Code: "UNAUTHORIZED", Message: "Actor is not permitted to perform this transition", Status: http.StatusForbidden, Err: err}
	case errors.Is(err, ride.ErrInvalidLocation):
		return BadRequest("Pickup and dropoff locations are required", err)
	}
	return Internal("An unexpected error occurred", err)
}

// IsStateConflict reports whether the error is an expected concurrency
// outcome rather than a failure.
func IsStateConflict(err error) bool {
	return errors.Is(err, ride.ErrAlreadyClaimed) ||
		errors.Is(err, ride.ErrStaleVersion) ||
		errors.Is(err, ride.ErrInvalidTransition)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return FromDomain(err)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
