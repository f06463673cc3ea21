package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/internal/ratelimit"
)

// RateLimit caps requests per authenticated user. Register after Auth.
// Unauthenticated calls fall back to the client address as the key.
func RateLimit(limiter *ratelimit.FixedWindowLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if uc := UserFrom(c); uc.Authenticated() {
			key = "user:" + strconv.FormatInt(uc.UserID, 10)
		}
		if !limiter.Allow(c.Request.Context(), key) {
			common.AbortFail(c, http.StatusTooManyRequests, 42900, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
