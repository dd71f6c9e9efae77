package middleware

import (
	"context"
	"errors"
	"net/http"

	"novaled/internal/core/domain"
	"novaled/internal/core/services"
	"novaled/pkg/circuitbreaker"
	apperrors "novaled/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AppErrorFrom maps domain and infrastructure errors to client-facing ones.
// Errors that already carry an AppError are returned unchanged.
func AppErrorFrom(err error) *apperrors.AppError {
	if appErr := apperrors.GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmojiNotAllowed):
		return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthenticated),
		errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrExpiredToken),
		errors.Is(err, services.ErrRevokedToken):
		return apperrors.WrapError(err, apperrors.ErrCodeUnauthorized, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrBanned):
		return apperrors.WrapError(err, apperrors.ErrCodeBanned, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrOwnerOnly),
		errors.Is(err, domain.ErrOwnerCannotBeBanned):
		return apperrors.WrapError(err, apperrors.ErrCodeForbidden, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrUserNotFound):
		return apperrors.WrapError(err, apperrors.ErrCodeNotFound, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrUsernameTaken),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrAlreadyLive),
		errors.Is(err, domain.ErrNotLive):
		return apperrors.WrapError(err, apperrors.ErrCodeConflict, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrCooldownActive):
		return apperrors.WrapError(err, apperrors.ErrCodeCooldown, err.Error(), http.StatusConflict)
	case domain.IsCaptureError(err):
		return apperrors.WrapError(err, apperrors.ErrCodeCapture, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, circuitbreaker.ErrOpen),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
	return apperrors.WrapError(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
}

// ErrorHandlerMiddleware renders the last error a handler attached with
// c.Error.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := AppErrorFrom(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed",
				"code", appErr.Code,
				"error", err,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
		} else {
			logger.Debugw("request rejected",
				"code", appErr.Code,
				"error", err,
				"path", c.Request.URL.Path,
			)
		}

		c.JSON(appErr.HTTPStatus, appErr.Response())
	}
}

// RecoveryMiddleware recovers from panics and returns proper error responses
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Errorw("panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				abortWith(c, apperrors.NewInternalError("internal server error"))
			}
		}()

		c.Next()
	}
}
