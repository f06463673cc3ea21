package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/githaohao/xzxz-lm-chat/internal/common"
	"github.com/githaohao/xzxz-lm-chat/pkg/apperrors"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100

	titleMaxRunes = 50
)

// sortColumns allowlists sortBy values (both API casings) to real columns.
var sortColumns = map[string]string{
	"created_at":      "created_at",
	"createdAt":       "created_at",
	"updated_at":      "updated_at",
	"updatedAt":       "updated_at",
	"last_message_at": "last_message_at",
	"lastMessageAt":   "last_message_at",
	"title":           "title",
	"message_count":   "message_count",
	"messageCount":    "message_count",
}

type Service struct {
	repo   *Repo
	events EventPublisher
	cache  StatsCache
	log    *zap.Logger
}

// NewService wires the chat history service. events and cache may be nil;
// the service then runs without the broker or the stats cache.
func NewService(repo *Repo, events EventPublisher, cache StatsCache, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, events: events, cache: cache, log: log}
}

type CreateSessionInput struct {
	Title       string
	Description string
	Tags        []string
}

func (s *Service) CreateSession(ctx context.Context, userID int64, in CreateSessionInput) (*Session, error) {
	if userID <= 0 {
		return nil, apperrors.NewUnauthenticated("user id required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = DefaultTitle
	}
	tags, err := marshalTags(in.Tags)
	if err != nil {
		return nil, apperrors.NewInvalidInput("tags must be serializable strings")
	}

	session := &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      SessionActive,
		Tags:        tags,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, apperrors.NewInternal("create session", err)
	}
	s.invalidateStats(ctx, userID)
	return session, nil
}

type ListSessionsInput struct {
	Page      int
	Limit     int
	Status    string
	Search    string
	SortBy    string
	SortOrder string
}

func (s *Service) ListSessions(ctx context.Context, userID int64, in ListSessionsInput) ([]Session, int64, ListSessionsInput, error) {
	if in.Page <= 0 {
		in.Page = 1
	}
	if in.Limit <= 0 {
		in.Limit = defaultPageLimit
	}
	if in.Limit > maxPageLimit {
		in.Limit = maxPageLimit
	}

	var status SessionStatus
	switch in.Status {
	case "":
	case string(SessionActive), string(SessionArchived), string(SessionDeleted):
		status = SessionStatus(in.Status)
	default:
		return nil, 0, in, apperrors.NewInvalidInput("status must be active, archived or deleted")
	}

	sortBy, ok := sortColumns[in.SortBy]
	if in.SortBy == "" {
		sortBy = "updated_at"
	} else if !ok {
		return nil, 0, in, apperrors.NewInvalidInput("unsupported sortBy field")
	}
	sortDesc := true
	if strings.EqualFold(in.SortOrder, "asc") {
		sortDesc = false
	}

	sessions, total, err := s.repo.ListSessions(ctx, userID, ListSessionsQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Status:   status,
		Search:   strings.TrimSpace(in.Search),
		SortBy:   sortBy,
		SortDesc: sortDesc,
	})
	if err != nil {
		return nil, 0, in, apperrors.NewInternal("list sessions", err)
	}
	return sessions, total, in, nil
}

func (s *Service) GetSession(ctx context.Context, userID int64, id string) (*Session, error) {
	session, err := s.repo.GetSession(ctx, userID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("session not found")
		}
		return nil, apperrors.NewInternal("get session", err)
	}
	return session, nil
}

type UpdateSessionInput struct {
	Title       *string
	Description *string
	Tags        *[]string
}

func (s *Service) UpdateSession(ctx context.Context, userID int64, id string, in UpdateSessionInput) (*Session, error) {
	session, err := s.GetSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, apperrors.NewInvalidInput("title must not be empty")
		}
		session.Title = title
	}
	if in.Description != nil {
		session.Description = strings.TrimSpace(*in.Description)
	}
	if in.Tags != nil {
		tags, err := marshalTags(*in.Tags)
		if err != nil {
			return nil, apperrors.NewInvalidInput("tags must be serializable strings")
		}
		session.Tags = tags
	}
	if err := s.repo.UpdateSession(ctx, session); err != nil {
		return nil, apperrors.NewInternal("update session", err)
	}
	return session, nil
}

// DeleteSession soft-deletes: the row stays, scoped reads stop matching.
func (s *Service) DeleteSession(ctx context.Context, userID int64, id string) error {
	ok, err := s.repo.SetSessionStatus(ctx, userID, id,
		[]SessionStatus{SessionActive, SessionArchived}, SessionDeleted)
	if err != nil {
		return apperrors.NewInternal("delete session", err)
	}
	if !ok {
		return apperrors.NewNotFound("session not found")
	}
	s.invalidateStats(ctx, userID)
	s.publish(ctx, EventSessionDeleted, id, userID)
	return nil
}

func (s *Service) ArchiveSession(ctx context.Context, userID int64, id string) (*Session, error) {
	return s.transition(ctx, userID, id, SessionActive, SessionArchived, "only active sessions can be archived")
}

func (s *Service) RestoreSession(ctx context.Context, userID int64, id string) (*Session, error) {
	return s.transition(ctx, userID, id, SessionArchived, SessionActive, "only archived sessions can be restored")
}

func (s *Service) transition(ctx context.Context, userID int64, id string, from, to SessionStatus, invalidMsg string) (*Session, error) {
	ok, err := s.repo.SetSessionStatus(ctx, userID, id, []SessionStatus{from}, to)
	if err != nil {
		return nil, apperrors.NewInternal("update session status", err)
	}
	if !ok {
		// distinguish absent from wrong-state
		if _, err := s.GetSession(ctx, userID, id); err != nil {
			return nil, err
		}
		return nil, apperrors.NewInvalidInput(invalidMsg)
	}
	s.invalidateStats(ctx, userID)
	return s.GetSession(ctx, userID, id)
}

type AddMessageInput struct {
	Role            string
	Content         string
	MessageType     string
	Metadata        map[string]any
	ParentMessageID string
}

// AddMessage appends a message, assigning the next per-session sequence
// number. The counter bump and the insert share one transaction; the session
// row lock serializes concurrent adders, so sequence numbers stay unique and
// message_count stays exact.
func (s *Service) AddMessage(ctx context.Context, userID int64, sessionID string, in AddMessageInput) (*Message, error) {
	role := MessageRole(in.Role)
	if in.Role == "" {
		role = RoleUser
	}
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return nil, apperrors.NewInvalidInput("role must be user, assistant or system")
	}

	msgType := MessageType(in.MessageType)
	if in.MessageType == "" {
		msgType = TypeText
	}
	switch msgType {
	case TypeText, TypeVoice, TypeImage, TypeFile, TypeMultimodal:
	default:
		return nil, apperrors.NewInvalidInput("unsupported message type")
	}

	if strings.TrimSpace(in.Content) == "" {
		return nil, apperrors.NewInvalidInput("content is required")
	}

	var metadata datatypes.JSON
	if in.Metadata != nil {
		raw, err := json.Marshal(in.Metadata)
		if err != nil {
			return nil, apperrors.NewInvalidInput("metadata must be serializable")
		}
		metadata = raw
	}

	var parentID *string
	if p := strings.TrimSpace(in.ParentMessageID); p != "" {
		parentID = &p
	}

	now := time.Now()
	msg := &Message{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		UserID:          userID,
		Role:            role,
		Content:         in.Content,
		MessageType:     msgType,
		Metadata:        metadata,
		Status:          StatusSent,
		ParentMessageID: parentID,
	}

	err := s.repo.Transaction(ctx, func(tx *Repo) error {
		seq, err := tx.BumpMessageCount(ctx, userID, sessionID, now)
		if err != nil {
			return err
		}
		msg.SequenceNumber = seq

		if seq == 1 {
			if err := s.maybeDeriveTitle(ctx, tx, userID, sessionID, msg); err != nil {
				return err
			}
		}
		return tx.InsertMessage(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("session not found")
		}
		return nil, apperrors.NewInternal("add message", err)
	}

	s.invalidateStats(ctx, userID)
	s.publish(ctx, EventMessageCreated, sessionID, userID)
	return msg, nil
}

// AddMessages inserts a batch sequentially. The first failure aborts the rest;
// already-inserted messages stay.
func (s *Service) AddMessages(ctx context.Context, userID int64, inputs []BatchMessageInput) ([]*Message, error) {
	if len(inputs) == 0 {
		return nil, apperrors.NewInvalidInput("messages must not be empty")
	}
	out := make([]*Message, 0, len(inputs))
	for i, in := range inputs {
		if strings.TrimSpace(in.SessionID) == "" {
			return out, apperrors.NewInvalidInput("sessionId is required on every message")
		}
		msg, err := s.AddMessage(ctx, userID, in.SessionID, in.AddMessageInput)
		if err != nil {
			s.log.Warn("batch insert aborted",
				zap.Int("index", i),
				zap.String("session_id", in.SessionID),
				zap.Error(err))
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

type BatchMessageInput struct {
	SessionID string
	AddMessageInput
}

func (s *Service) ListMessages(ctx context.Context, userID int64, sessionID string, page, limit int) ([]Message, int64, int, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	// ownership gate; hides other users' sessions as absent
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, 0, page, limit, err
	}
	msgs, total, err := s.repo.ListMessages(ctx, sessionID, page, limit)
	if err != nil {
		return nil, 0, page, limit, apperrors.NewInternal("list messages", err)
	}
	return msgs, total, page, limit, nil
}

// DeleteMessage removes one message after checking ownership through its
// session. The session counter is decremented with a floor at zero.
func (s *Service) DeleteMessage(ctx context.Context, userID int64, messageID string) error {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("message not found")
		}
		return apperrors.NewInternal("get message", err)
	}
	session, err := s.repo.GetSessionAnyStatus(ctx, msg.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("message not found")
		}
		return apperrors.NewInternal("get session", err)
	}
	if session.UserID != userID {
		return apperrors.NewForbidden("message belongs to another user")
	}

	err = s.repo.Transaction(ctx, func(tx *Repo) error {
		if err := tx.DeleteMessage(ctx, messageID); err != nil {
			return err
		}
		return tx.DropMessageCount(ctx, msg.SessionID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFound("message not found")
		}
		return apperrors.NewInternal("delete message", err)
	}

	s.invalidateStats(ctx, userID)
	s.publish(ctx, EventMessageDeleted, msg.SessionID, userID)
	return nil
}

func (s *Service) GetUserStats(ctx context.Context, userID int64) (*UserStats, error) {
	if s.cache != nil {
		if stats, ok := s.cache.GetStats(ctx, userID); ok {
			return stats, nil
		}
	}

	active, err := s.repo.CountSessionsByStatus(ctx, userID, SessionActive)
	if err != nil {
		return nil, apperrors.NewInternal("count active sessions", err)
	}
	archived, err := s.repo.CountSessionsByStatus(ctx, userID, SessionArchived)
	if err != nil {
		return nil, apperrors.NewInternal("count archived sessions", err)
	}
	messages, err := s.repo.CountUserMessages(ctx, userID)
	if err != nil {
		return nil, apperrors.NewInternal("count messages", err)
	}

	stats := &UserStats{
		ActiveSessions:   active,
		ArchivedSessions: archived,
		TotalMessages:    messages,
	}
	if s.cache != nil {
		s.cache.SetStats(ctx, userID, *stats)
	}
	return stats, nil
}

// ReconcileSession recomputes message_count and last_message_at from the
// message table. Called by the event worker to repair counter drift.
func (s *Service) ReconcileSession(ctx context.Context, sessionID string) error {
	session, err := s.repo.GetSessionAnyStatus(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // session gone, nothing to repair
		}
		return err
	}
	count, lastAt, err := s.repo.CountMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if int64(session.MessageCount) == count {
		return nil
	}
	s.log.Info("reconciling session counters",
		zap.String("session_id", sessionID),
		zap.Int("stored", session.MessageCount),
		zap.Int64("actual", count))
	return s.repo.SetMessageCount(ctx, sessionID, count, lastAt)
}

func (s *Service) maybeDeriveTitle(ctx context.Context, tx *Repo, userID int64, sessionID string, msg *Message) error {
	if msg.Role != RoleUser {
		return nil
	}
	session, err := tx.GetSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if session.Title != DefaultTitle {
		return nil
	}
	session.Title = DeriveTitle(msg.Content)
	return tx.UpdateSession(ctx, session)
}

// DeriveTitle builds a session title from message content, truncated to 50
// runes plus an ellipsis.
func DeriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleMaxRunes]) + "…"
	}
	if title == "" {
		return DefaultTitle
	}
	return title
}

func (s *Service) invalidateStats(ctx context.Context, userID int64) {
	if s.cache != nil {
		s.cache.InvalidateStats(ctx, userID)
	}
}

func (s *Service) publish(ctx context.Context, kind EventKind, sessionID string, userID int64) {
	if s.events == nil {
		return
	}
	id, err := common.NewULID()
	if err != nil {
		id = uuid.NewString()
	}
	ev := Event{
		ID:         id,
		Kind:       kind,
		SessionID:  sessionID,
		UserID:     userID,
		OccurredAt: time.Now(),
	}
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.log.Warn("event publish failed",
			zap.String("kind", string(kind)),
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

func marshalTags(tags []string) (datatypes.JSON, error) {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
