package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
	"novaled/internal/infrastructure/repositories/document"
	"novaled/internal/infrastructure/store/memory"
	apperrors "novaled/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type authFixture struct {
	auth   services.AuthService
	users  *document.UserRepository
	router *gin.Engine
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := clockwork.NewFakeClock()
	store := memory.NewMemoryStore(nil, memory.WithClock(clock))
	t.Cleanup(func() { _ = store.Close() })

	f := &authFixture{
		auth:  services.NewAuthService("test-secret", time.Hour, 24*time.Hour, clock),
		users: document.NewUserRepository(store),
	}

	f.router = gin.New()
	f.router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	protected := f.router.Group("/", AuthMiddleware(f.auth), ActiveUserMiddleware(f.users, 0, clock))
	protected.GET("/me", func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})
	protected.GET("/owner", OwnerOnlyMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return f
}

func (f *authFixture) seed(t *testing.T, id, username string, isBanned bool) string {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), &domain.User{
		ID:       domain.UserID(id),
		Username: username,
		IsOwner:  domain.IsOwnerName(username),
		Banned:   isBanned,
	}, &domain.Account{}))
	pair, err := f.auth.GenerateTokens(domain.UserID(id), username)
	require.NoError(t, err)
	return pair.AccessToken
}

func (f *authFixture) do(t *testing.T, path, token string) (int, apperrors.Response) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	f.router.ServeHTTP(w, req)

	var body apperrors.Response
	if w.Code >= 400 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body
}

func TestAuthMiddleware(t *testing.T) {
	f := newAuthFixture(t)
	token := f.seed(t, "u1", "alice", false)

	code, body := f.do(t, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, body.Code)

	code, _ = f.do(t, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, "/me", token)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthMiddleware_RevokedToken(t *testing.T) {
	f := newAuthFixture(t)
	token := f.seed(t, "u1", "alice", false)

	claims, err := f.auth.ValidateToken(token)
	require.NoError(t, err)
	f.auth.Revoke(claims.ID, claims.ExpiresAt.Time)

	code, _ := f.do(t, "/me", token)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestActiveUserMiddleware_RejectsBanned(t *testing.T) {
	f := newAuthFixture(t)
	token := f.seed(t, "u1", "mallory", true)

	code, body := f.do(t, "/me", token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, apperrors.ErrCodeBanned, body.Code)
}

func TestActiveUserMiddleware_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	pair, err := f.auth.GenerateTokens("ghost", "ghost")
	require.NoError(t, err)

	code, _ := f.do(t, "/me", pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestOwnerOnlyMiddleware(t *testing.T) {
	f := newAuthFixture(t)
	userToken := f.seed(t, "u1", "alice", false)
	ownerToken := f.seed(t, "u2", "DevKai", false)

	code, body := f.do(t, "/owner", userToken)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, apperrors.ErrCodeForbidden, body.Code)

	code, _ = f.do(t, "/owner", ownerToken)
	assert.Equal(t, http.StatusNoContent, code)
}

func TestAppErrorFrom(t *testing.T) {
	tests := []struct {
		err    error
		code   apperrors.ErrorCode
		status int
	}{
		{domain.ErrCooldownActive, apperrors.ErrCodeCooldown, http.StatusConflict},
		{fmt.Errorf("start: %w", domain.ErrCaptureDenied), apperrors.ErrCodeCapture, http.StatusUnprocessableEntity},
		{domain.ErrBanned, apperrors.ErrCodeBanned, http.StatusForbidden},
		{domain.ErrUsernameTaken, apperrors.ErrCodeConflict, http.StatusConflict},
		{fmt.Errorf("%w: caption too long", domain.ErrInvalidInput), apperrors.ErrCodeInvalidInput, http.StatusBadRequest},
		{domain.NewStoreError("read", "users/u1", context.DeadlineExceeded), apperrors.ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), apperrors.ErrCodeInternal, http.StatusInternalServerError},
		{apperrors.NewRateLimitError(), apperrors.ErrCodeRateLimit, http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			appErr := AppErrorFrom(tt.err)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}
}

func TestErrorHandlerMiddleware_RendersAttachedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(domain.ErrCooldownActive)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body apperrors.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperrors.ErrCodeCooldown, body.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
