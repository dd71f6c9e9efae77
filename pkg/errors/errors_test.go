package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	err := NewAppError(ErrCodeInvalidInput, "test error", http.StatusBadRequest)
	assert.Equal(t, "INVALID_INPUT: test error", err.Error())

	cause := errors.New("original error")
	wrapped := WrapError(cause, ErrCodeInternal, "wrapped error", http.StatusInternalServerError)
	assert.Contains(t, wrapped.Error(), "original error")
	assert.ErrorIs(t, wrapped, cause)
}

func TestAppError_Response(t *testing.T) {
	err := NewAppError(ErrCodeCooldown, "cooldown active", http.StatusConflict).
		WithDetail("remaining", "4:12")

	resp := err.Response()
	assert.Equal(t, ErrCodeCooldown, resp.Code)
	assert.Equal(t, "cooldown active", resp.Message)
	assert.Equal(t, "4:12", resp.Details["remaining"])
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{NewInvalidInputError("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NewNotFoundError("user"), ErrCodeNotFound, http.StatusNotFound},
		{NewUnauthorizedError("x"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{NewForbiddenError("x"), ErrCodeForbidden, http.StatusForbidden},
		{NewConflictError("x"), ErrCodeConflict, http.StatusConflict},
		{NewRateLimitError(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{NewInternalError("x"), ErrCodeInternal, http.StatusInternalServerError},
		{NewServiceUnavailableError("x"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus)
	}
	assert.Equal(t, "user not found", NewNotFoundError("user").Message)
}

func TestGetAppError(t *testing.T) {
	appErr := NewForbiddenError("owner only")
	wrapped := fmt.Errorf("admin: %w", appErr)

	require.True(t, IsAppError(wrapped))
	assert.Same(t, appErr, GetAppError(wrapped))

	assert.Nil(t, GetAppError(errors.New("plain")))
	assert.Nil(t, GetAppError(nil))
	assert.False(t, IsAppError(nil))
}
