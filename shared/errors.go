package shared

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// ErrorCategory classifies API errors for HTTP mapping and logging.
type ErrorCategory string

const (
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryNotFound   ErrorCategory = "not_found"
	ErrorCategoryConflict   ErrorCategory = "conflict"
	ErrorCategoryAuth       ErrorCategory = "authentication"
	ErrorCategoryForbidden  ErrorCategory = "authorization"
	ErrorCategoryInternal   ErrorCategory = "internal"
)

// APIError is the standardized error carried from services to handlers.
type APIError struct {
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`
	Cause    error         `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error category onto an HTTP status code. Conflicts map
// to 400 with a specific message, matching the public API contract.
func (e *APIError) HTTPStatus() int {
	switch e.Category {
	case ErrorCategoryValidation, ErrorCategoryConflict:
		return http.StatusBadRequest
	case ErrorCategoryNotFound:
		return http.StatusNotFound
	case ErrorCategoryAuth:
		return http.StatusUnauthorized
	case ErrorCategoryForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// LogError logs the error with structured fields. Internal errors log at
// error level, client errors at warn.
func (e *APIError) LogError(operation string) {
	fields := logrus.Fields{
		"error_category": e.Category,
		"operation":      operation,
	}
	if e.Cause != nil {
		fields["cause"] = e.Cause.Error()
	}
	if e.Category == ErrorCategoryInternal {
		logrus.WithFields(fields).Error(e.Message)
	} else {
		logrus.WithFields(fields).Warn(e.Message)
	}
}

func NewValidationError(message string) *APIError {
	return &APIError{Category: ErrorCategoryValidation, Message: message}
}

func NewNotFoundError(message string) *APIError {
	return &APIError{Category: ErrorCategoryNotFound, Message: message}
}

func NewConflictError(message string) *APIError {
	return &APIError{Category: ErrorCategoryConflict, Message: message}
}

func NewAuthError(message string) *APIError {
	return &APIError{Category: ErrorCategoryAuth, Message: message}
}

func NewForbiddenError(message string) *APIError {
	return &APIError{Category: ErrorCategoryForbidden, Message: message}
}

// NewInternalError wraps an infrastructure failure. The public message hides
// the cause; the cause stays available for logging via Unwrap.
func NewInternalError(message string, cause error) *APIError {
	return &APIError{Category: ErrorCategoryInternal, Message: message, Cause: cause}
}

// AsAPIError extracts an *APIError from err, wrapping unknown errors as
// internal so handlers always have a category to map.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewInternalError("internal server error", err)
}
