package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"dicedecision/internal/domain"
)

func TestFromDecisionError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantType   ErrorType
		wantStatus int
		retryable  bool
	}{
		{"open exists", domain.ErrOpenDecisionExists, ErrorTypeOpenDecisionExists, http.StatusConflict, false},
		{"not found", domain.ErrDecisionNotFound, ErrorTypeDecisionNotFound, http.StatusNotFound, false},
		{"closed", domain.ErrDecisionClosed, ErrorTypeDecisionClosed, http.StatusConflict, false},
		{"already rerolled", domain.ErrAlreadyRerolled, ErrorTypeAlreadyRerolled, http.StatusConflict, false},
		{"update failed", domain.ErrUpdateFailed, ErrorTypeUpdateFailed, http.StatusServiceUnavailable, true},
		{"create failed", domain.ErrCreateFailed, ErrorTypeCreateFailed, http.StatusServiceUnavailable, true},
		{"read failed", fmt.Errorf("%w: get decision: sql: database is closed", domain.ErrReadFailed), ErrorTypeReadFailed, http.StatusServiceUnavailable, true},
		{"invalid category", domain.ErrInvalidCategory, ErrorTypeValidation, http.StatusBadRequest, false},
		{"invalid input", fmt.Errorf("%w: actor is required", domain.ErrInvalidInput), ErrorTypeValidation, http.StatusBadRequest, false},
		{"reroll in progress", domain.ErrRerollInProgress, ErrorTypeRerollInProgress, http.StatusConflict, true},
		{"wrapped kind", fmt.Errorf("toggle vote: %w", domain.ErrDecisionClosed), ErrorTypeDecisionClosed, http.StatusConflict, false},
		{"unknown", stderrors.New("disk on fire"), ErrorTypeInternal, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := FromDecisionError(tt.err)
			assert.Equal(t, tt.wantType, appErr.Type)
			assert.Equal(t, tt.wantStatus, appErr.StatusCode)
			assert.Equal(t, tt.retryable, appErr.Retryable)
			assert.True(t, stderrors.Is(appErr, tt.err))
		})
	}
}

func TestFromDecisionError_PassesAppErrorThrough(t *testing.T) {
	orig := NewValidationError("bad body", nil)
	assert.Same(t, orig, FromDecisionError(fmt.Errorf("wrap: %w", orig)))
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "not_found: missing", NewNotFoundError("missing").Error())
	assert.Equal(t, "internal: boom (db down)", NewInternalError("boom", stderrors.New("db down")).Error())
}
