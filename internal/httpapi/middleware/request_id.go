package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/githaohao/xzxz-lm-chat/internal/common"
)

const (
	// RequestIDHeader propagates the id across services.
	RequestIDHeader = "X-Request-Id"

	requestIDKey = "request_id"
	loggerKey    = "request_logger"
)

// RequestID honors an incoming request id or mints a ULID, mirrors it on the
// response, and stores a child logger carrying it for downstream handlers.
func RequestID(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" {
			if fresh, err := common.NewULID(); err == nil {
				id = fresh
			}
		}
		c.Header(RequestIDHeader, id)
		c.Set(requestIDKey, id)
		c.Set(loggerKey, log.With(zap.String("request_id", id)))
		c.Next()
	}
}

// RequestIDFrom returns the request id, "" when the middleware did not run.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger returns the request-scoped logger, falling back to a nop logger.
func Logger(c *gin.Context) *zap.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if log, ok := v.(*zap.Logger); ok {
			return log
		}
	}
	return zap.NewNop()
}
