package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsAndStatusMapping(t *testing.T) {
	cause := fmt.Errorf("redis: connection refused")

	tests := []struct {
		name       string
		err        *Error
		wantType   ErrorType
		wantCause  error
		wantStatus int
	}{
		{"validation", ValidationError("danmaku speed out of range"), TypeValidation, nil, http.StatusBadRequest},
		{"not_found", NotFoundError("group not found"), TypeNotFound, nil, http.StatusNotFound},
		{"internal", InternalError("failed to load recent messages", cause), TypeInternal, cause, http.StatusInternalServerError},
		{"unavailable", UnavailableError("settings store unreachable", cause), TypeUnavailable, cause, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantCause, tt.err.Cause)
			assert.Equal(t, tt.wantStatus, tt.err.HTTPStatus())
			assert.Contains(t, tt.err.Error(), string(tt.wantType))
		})
	}
}

func TestUnknownTypeDefaultsToInternalStatus(t *testing.T) {
	err := &Error{Type: ErrorType("bogus")}
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestErrorStringOmitsNilCause(t *testing.T) {
	err := InternalError("something went wrong", nil)
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestWithContextChaining(t *testing.T) {
	err := ValidationError("danmaku speed out of range").
		WithContext("min", 5).
		WithContext("max", 60)

	resp := err.ToResponse()
	assert.Equal(t, "danmaku speed out of range", resp.Error)
	assert.Equal(t, TypeValidation, resp.Type)
	assert.Equal(t, 5, resp.Context["min"])
	assert.Equal(t, 60, resp.Context["max"])
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := InternalError("wrapped", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestAsStructuredError(t *testing.T) {
	t.Run("passes through", func(t *testing.T) {
		original := ValidationError("original")
		assert.Equal(t, original, AsStructuredError(original))
	})

	t.Run("unwraps", func(t *testing.T) {
		wrapped := fmt.Errorf("wrapped: %w", NotFoundError("group not found"))
		result := AsStructuredError(wrapped)
		require.NotNil(t, result)
		assert.Equal(t, TypeNotFound, result.Type)
		assert.Equal(t, "group not found", result.Message)
	})

	t.Run("wraps plain errors as internal", func(t *testing.T) {
		cause := fmt.Errorf("plain error")
		result := AsStructuredError(cause)
		require.NotNil(t, result)
		assert.Equal(t, TypeInternal, result.Type)
		assert.Equal(t, cause, result.Cause)
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})
}
