package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"dicedecision/internal/domain"
)

// ErrorType is the stable machine-readable kind sent to clients
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeAuthentication     ErrorType = "authentication"
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeConflict           ErrorType = "conflict"
	ErrorTypeOpenDecisionExists ErrorType = "open_decision_exists"
	ErrorTypeDecisionNotFound   ErrorType = "decision_not_found"
	ErrorTypeDecisionClosed     ErrorType = "decision_closed"
	ErrorTypeAlreadyRerolled    ErrorType = "already_rerolled"
	ErrorTypeUpdateFailed       ErrorType = "update_failed"
	ErrorTypeCreateFailed       ErrorType = "create_failed"
	ErrorTypeReadFailed         ErrorType = "read_failed"
	ErrorTypeRerollInProgress   ErrorType = "reroll_in_progress"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Retryable  bool                   `json:"retryable"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeAuthentication,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConflictError creates a generic conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// FromDecisionError maps an engine error kind to its transport form.
// Unknown errors become internal errors.
func FromDecisionError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrOpenDecisionExists):
		return &AppError{Type: ErrorTypeOpenDecisionExists, Message: "This group already has an open decision", StatusCode: http.StatusConflict, Internal: err}
	case stderrors.Is(err, domain.ErrDecisionNotFound):
		return &AppError{Type: ErrorTypeDecisionNotFound, Message: "Decision not found", StatusCode: http.StatusNotFound, Internal: err}
	case stderrors.Is(err, domain.ErrDecisionClosed):
		return &AppError{Type: ErrorTypeDecisionClosed, Message: "This decision is no longer open", StatusCode: http.StatusConflict, Internal: err}
	case stderrors.Is(err, domain.ErrAlreadyRerolled):
		return &AppError{Type: ErrorTypeAlreadyRerolled, Message: "This decision has already been rerolled", StatusCode: http.StatusConflict, Internal: err}
	case stderrors.Is(err, domain.ErrUpdateFailed):
		return &AppError{Type: ErrorTypeUpdateFailed, Message: "Could not update the decision, please try again", StatusCode: http.StatusServiceUnavailable, Retryable: true, Internal: err}
	case stderrors.Is(err, domain.ErrCreateFailed):
		return &AppError{Type: ErrorTypeCreateFailed, Message: "Could not create the decision, please try again", StatusCode: http.StatusServiceUnavailable, Retryable: true, Internal: err}
	case stderrors.Is(err, domain.ErrReadFailed):
		return &AppError{Type: ErrorTypeReadFailed, Message: "Could not load decisions, please try again", StatusCode: http.StatusServiceUnavailable, Retryable: true, Internal: err}
	case stderrors.Is(err, domain.ErrInvalidCategory):
		return &AppError{Type: ErrorTypeValidation, Message: "Unknown decision category", StatusCode: http.StatusBadRequest, Internal: err}
	case stderrors.Is(err, domain.ErrInvalidInput):
		return &AppError{Type: ErrorTypeValidation, Message: err.Error(), StatusCode: http.StatusBadRequest, Internal: err}
	case stderrors.Is(err, domain.ErrRerollInProgress):
		return &AppError{Type: ErrorTypeRerollInProgress, Message: "A reroll with this idempotency key is still in progress", StatusCode: http.StatusConflict, Retryable: true, Internal: err}
	default:
		return NewInternalError("Internal server error", err)
	}
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Success bool `json:"success"`
	Error   struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Retryable bool                   `json:"retryable,omitempty"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
