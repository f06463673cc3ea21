package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/internal/httpapi/middleware"
)

type createSessionReq struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // empty body is a valid session

	session, err := h.ChatSvc.CreateSession(c.Request.Context(), uid, chat.CreateSessionInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, session)
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions, total, in, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, chat.ListSessionsInput{
		Page:      page,
		Limit:     limit,
		Status:    c.Query("status"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OKPage(c, sessions, in.Page, in.Limit, total)
}

func (h *Handler) GetSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	session, err := h.ChatSvc.GetSession(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, session)
}

type updateSessionReq struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
}

func (h *Handler) UpdateSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	var req updateSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "invalid json body")
		return
	}

	session, err := h.ChatSvc.UpdateSession(c.Request.Context(), uid, c.Param("id"), chat.UpdateSessionInput{
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, session)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	if err := h.ChatSvc.DeleteSession(c.Request.Context(), uid, c.Param("id")); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) ArchiveSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	session, err := h.ChatSvc.ArchiveSession(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, session)
}

func (h *Handler) RestoreSession(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	session, err := h.ChatSvc.RestoreSession(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, session)
}

type addMessageReq struct {
	Role            string         `json:"role"`
	Content         string         `json:"content" binding:"required"`
	MessageType     string         `json:"message_type"`
	Metadata        map[string]any `json:"metadata"`
	ParentMessageID string         `json:"parent_message_id"`
}

func (h *Handler) AddMessage(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	var req addMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "content is required")
		return
	}

	msg, err := h.ChatSvc.AddMessage(c.Request.Context(), uid, c.Param("id"), chat.AddMessageInput{
		Role:            req.Role,
		Content:         req.Content,
		MessageType:     req.MessageType,
		Metadata:        req.Metadata,
		ParentMessageID: req.ParentMessageID,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, total, page, limit, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, c.Param("id"), page, limit)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OKPage(c, msgs, page, limit, total)
}

type batchMessageReq struct {
	SessionID       string         `json:"session_id" binding:"required"`
	Role            string         `json:"role"`
	Content         string         `json:"content" binding:"required"`
	MessageType     string         `json:"message_type"`
	Metadata        map[string]any `json:"metadata"`
	ParentMessageID string         `json:"parent_message_id"`
}

// AddMessagesBatch inserts an array of message DTOs sequentially.
func (h *Handler) AddMessagesBatch(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	var reqs []batchMessageReq
	if err := c.ShouldBindJSON(&reqs); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "body must be an array of messages with session_id and content")
		return
	}

	inputs := make([]chat.BatchMessageInput, 0, len(reqs))
	for _, req := range reqs {
		inputs = append(inputs, chat.BatchMessageInput{
			SessionID: req.SessionID,
			AddMessageInput: chat.AddMessageInput{
				Role:            req.Role,
				Content:         req.Content,
				MessageType:     req.MessageType,
				Metadata:        req.Metadata,
				ParentMessageID: req.ParentMessageID,
			},
		})
	}

	msgs, err := h.ChatSvc.AddMessages(c.Request.Context(), uid, inputs)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, msgs)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	if err := h.ChatSvc.DeleteMessage(c.Request.Context(), uid, c.Param("id")); err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, nil)
}

func (h *Handler) GetUserStats(c *gin.Context) {
	uid := middleware.UserFrom(c).UserID

	stats, err := h.ChatSvc.GetUserStats(c.Request.Context(), uid)
	if err != nil {
		failFromErr(c, err)
		return
	}
	common.OK(c, stats)
}

// Health is public: no identity headers required.
func (h *Handler) Health(c *gin.Context) {
	dbState := "up"
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		dbState = "down"
	}
	redisState := "disabled"
	if h.Redis != nil {
		redisState = "up"
		if err := h.Redis.Ping(c.Request.Context()); err != nil {
			redisState = "down"
		}
	}
	common.OK(c, gin.H{
		"status": "ok",
		"db":     dbState,
		"redis":  redisState,
	})
}

// TestAuth echoes the identity the guard resolved; useful to debug what the
// gateway is forwarding.
func (h *Handler) TestAuth(c *gin.Context) {
	uc := middleware.UserFrom(c)
	common.OK(c, gin.H{
		"user_id":     uc.UserID,
		"username":    uc.Username,
		"user_key":    uc.UserKey,
		"roles":       uc.Roles,
		"permissions": uc.Permissions,
		"dept_id":     uc.DeptID,
		"data_scope":  uc.DataScope,
	})
}
