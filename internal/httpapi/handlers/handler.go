package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/internal/httpapi/middleware"
	"github.com/githaohao/xzxz-lm-chat/internal/store/redisstore"
	"github.com/githaohao/xzxz-lm-chat/pkg/apperrors"
)

type Handler struct {
	ChatSvc *chat.Service
	DB      *gorm.DB
	Redis   *redisstore.Store
}

func NewHandler(chatSvc *chat.Service, db *gorm.DB, rds *redisstore.Store) *Handler {
	return &Handler{ChatSvc: chatSvc, DB: db, Redis: rds}
}

// failFromErr maps application errors onto the envelope; anything untyped is
// a 500 and gets logged with the request id.
func failFromErr(c *gin.Context, err error) {
	switch {
	case apperrors.IsNotFound(err):
		common.Fail(c, http.StatusNotFound, 40400, errMessage(err))
	case apperrors.IsForbidden(err):
		common.Fail(c, http.StatusForbidden, 40300, errMessage(err))
	case apperrors.IsInvalidInput(err):
		common.Fail(c, http.StatusBadRequest, 40000, errMessage(err))
	case apperrors.IsUnauthenticated(err):
		common.Fail(c, http.StatusUnauthorized, 40100, errMessage(err))
	default:
		middleware.Logger(c).Error("request failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
	}
}

func errMessage(err error) string {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
