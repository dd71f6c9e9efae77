package middleware

import (
	"novaled/pkg/logger"
	"novaled/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
)

const RequestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware tags each request with an id and logs it on
// completion.
func RequestLoggerMiddleware(log *logger.ContextLogger, clock clockwork.Clock) gin.HandlerFunc {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = utils.NewRequestID()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := logger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := clock.Now()
		c.Next()

		ctx = c.Request.Context()
		if id, ok := UserID(c); ok {
			ctx = logger.WithUserID(ctx, string(id))
		}
		log.LogRequest(ctx, c.Request.Method, c.FullPath(), c.Writer.Status(), clock.Since(start).Milliseconds())
	}
}
