package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Transaction runs fn against a repo bound to one DB transaction.
func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{db: tx})
	})
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSession returns the owner's session. Soft-deleted rows do not match, so
// callers see them as absent.
func (r *Repo) GetSession(ctx context.Context, userID int64, id string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND status <> ?", id, userID, SessionDeleted).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessionsQuery carries validated pagination/filter/sort parameters.
// SortBy must already be an allowlisted column name.
type ListSessionsQuery struct {
	Page      int
	Limit     int
	Status    SessionStatus
	Search    string
	SortBy    string
	SortDesc  bool
}

func (r *Repo) ListSessions(ctx context.Context, userID int64, q ListSessionsQuery) ([]Session, int64, error) {
	base := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ?", userID)

	if q.Status != "" {
		base = base.Where("status = ?", q.Status)
	} else {
		base = base.Where("status <> ?", SessionDeleted)
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		base = base.Where("title LIKE ? OR description LIKE ?", pattern, pattern)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := q.SortBy
	if q.SortDesc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	var sessions []Session
	err := base.Order(order).
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}
	return sessions, total, nil
}

func (r *Repo) UpdateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Save(s).Error
}

// SetSessionStatus transitions the owner's session status. RowsAffected is 0
// when the session is absent, not owned, or not in one of the from statuses.
func (r *Repo) SetSessionStatus(ctx context.Context, userID int64, id string, from []SessionStatus, to SessionStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND user_id = ? AND status IN ?", id, userID, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// BumpMessageCount atomically increments the session counter and stamps
// last_message_at, returning the new count. Run inside a transaction: the
// row lock taken by the UPDATE serializes concurrent message inserts, so the
// returned count doubles as the next sequence number.
func (r *Repo) BumpMessageCount(ctx context.Context, userID int64, sessionID string, at time.Time) (int, error) {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND user_id = ? AND status <> ?", sessionID, userID, SessionDeleted).
		Updates(map[string]any{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": at,
			"updated_at":      at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var count int
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Select("message_count").
		Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DropMessageCount decrements the session counter, clamped at zero.
func (r *Repo) DropMessageCount(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"message_count": gorm.Expr("CASE WHEN message_count > 0 THEN message_count - 1 ELSE 0 END"),
			"updated_at":    time.Now(),
		}).Error
}

// SetMessageCount overwrites the denormalized counter (reconciliation path).
func (r *Repo) SetMessageCount(ctx context.Context, sessionID string, count int64, lastMessageAt *time.Time) error {
	updates := map[string]any{
		"message_count": count,
		"updated_at":    time.Now(),
	}
	if lastMessageAt != nil {
		updates["last_message_at"] = *lastMessageAt
	}
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", sessionID).
		Updates(updates).Error
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages pages through a session's messages in sequence order.
func (r *Repo) ListMessages(ctx context.Context, sessionID string, page, limit int) ([]Message, int64, error) {
	base := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var msgs []Message
	err := base.Order("sequence_number ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&msgs).Error
	if err != nil {
		return nil, 0, err
	}
	return msgs, total, nil
}

func (r *Repo) DeleteMessage(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&Message{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountMessages returns the authoritative message count and newest timestamp
// for a session, used by the reconciliation worker.
func (r *Repo) CountMessages(ctx context.Context, sessionID string) (int64, *time.Time, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ?", sessionID).
		Count(&count).Error
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var last Message
	err = r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence_number DESC").
		First(&last).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &last.CreatedAt, nil
}

// GetSessionAnyStatus is used internally where soft-deleted rows still matter
// (reconciliation, cascade checks).
func (r *Repo) GetSessionAnyStatus(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) CountSessionsByStatus(ctx context.Context, userID int64, status SessionStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND status = ?", userID, status).
		Count(&count).Error
	return count, err
}

func (r *Repo) CountUserMessages(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Joins("JOIN chat_session ON chat_session.id = chat_message.session_id").
		Where("chat_message.user_id = ? AND chat_session.status <> ?", userID, SessionDeleted).
		Count(&count).Error
	return count, err
}
