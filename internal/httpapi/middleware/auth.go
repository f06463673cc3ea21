package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/internal/gatewaytoken"
	"github.com/githaohao/xzxz-lm-chat/internal/identity"
)

// UserContextKey exposes the resolved identity on the gin context for direct
// handler access; the same value rides the request context.
const UserContextKey = "user_context"

// Auth is the guard on protected routes. Identity is read from gateway
// headers and trusted as-is: this is pass-through identity, not
// authentication, and it is only safe when the service is network-isolated
// behind the gateway. When verify is non-nil, a valid gateway signature in
// X-Gateway-Token is additionally required, which closes the header-injection
// hole for callers that bypass the gateway.
//
// Public routes simply do not register this middleware.
func Auth(verify *gatewaytoken.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verify != nil {
			if err := verify.Verify(c.GetHeader(gatewaytoken.Header)); err != nil {
				common.AbortFail(c, http.StatusUnauthorized, 40102, "invalid gateway signature")
				return
			}
		}

		uc := identity.FromHeader(c.Request.Header)
		if !uc.Authenticated() {
			common.AbortFail(c, http.StatusUnauthorized, 40101,
				"upstream gateway did not supply identity headers")
			return
		}

		c.Request = c.Request.WithContext(identity.WithContext(c.Request.Context(), uc))
		c.Set(UserContextKey, uc)
		c.Next()
	}
}

// UserFrom returns the identity bound by Auth. The zero value means the guard
// did not run (public route).
func UserFrom(c *gin.Context) identity.UserContext {
	if v, ok := c.Get(UserContextKey); ok {
		if uc, ok := v.(identity.UserContext); ok {
			return uc
		}
	}
	return identity.FromContext(c.Request.Context())
}
