package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/internal/config"
	"github.com/githaohao/xzxz-lm-chat/internal/gatewaytoken"
	"github.com/githaohao/xzxz-lm-chat/internal/httpapi/handlers"
	"github.com/githaohao/xzxz-lm-chat/internal/httpapi/middleware"
	"github.com/githaohao/xzxz-lm-chat/internal/ratelimit"
	"github.com/githaohao/xzxz-lm-chat/internal/store/redisstore"
)

type Deps struct {
	DB      *gorm.DB
	Redis   *redisstore.Store
	ChatSvc *chat.Service
	Verify  *gatewaytoken.Verifier
	Limiter *ratelimit.FixedWindowLimiter
	Log     *zap.Logger
}

func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID(deps.Log))
	r.Use(middleware.RequestLog())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	r.Use(cors.New(corsCfg))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(deps.ChatSvc, deps.DB, deps.Redis)

	// The gateway probes health unauthenticated.
	r.GET("/chat/health", h.Health)

	authGroup := r.Group("/chat")
	authGroup.Use(middleware.Auth(deps.Verify))
	authGroup.Use(middleware.RateLimit(deps.Limiter))
	authGroup.Use(middleware.Transform())

	authGroup.GET("/test-auth", h.TestAuth)
	authGroup.GET("/stats", h.GetUserStats)

	authGroup.POST("/sessions", h.CreateSession)
	authGroup.GET("/sessions", h.ListSessions)
	authGroup.GET("/sessions/:id", h.GetSession)
	authGroup.PUT("/sessions/:id", h.UpdateSession)
	authGroup.DELETE("/sessions/:id", h.DeleteSession)
	authGroup.PUT("/sessions/:id/archive", h.ArchiveSession)
	authGroup.PUT("/sessions/:id/restore", h.RestoreSession)

	authGroup.POST("/sessions/:id/messages", h.AddMessage)
	authGroup.GET("/sessions/:id/messages", h.ListMessages)
	authGroup.POST("/messages/batch", h.AddMessagesBatch)
	authGroup.DELETE("/messages/:id", h.DeleteMessage)

	return r
}
