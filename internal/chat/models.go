package chat

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

type MessageType string

const (
	TypeText       MessageType = "text"
	TypeVoice      MessageType = "voice"
	TypeImage      MessageType = "image"
	TypeFile       MessageType = "file"
	TypeMultimodal MessageType = "multimodal"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// DefaultTitle is assigned at creation when the client sends no title; the
// first message replaces it (see Service.AddMessage).
const DefaultTitle = "New Chat"

// Session is a chat conversation owned by one user. Deletion is soft: the row
// stays with status=deleted and scoped reads stop matching it.
type Session struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        int64          `gorm:"index;not null" json:"user_id"`
	Title         string         `gorm:"type:varchar(255);not null" json:"title"`
	Description   string         `gorm:"type:text" json:"description"`
	Status        SessionStatus  `gorm:"type:varchar(16);index;not null;default:active" json:"status"`
	Tags          datatypes.JSON `gorm:"type:json" json:"tags"`
	LastMessageAt *time.Time     `json:"last_message_at"`
	MessageCount  int            `gorm:"not null;default:0" json:"message_count"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Session) TableName() string { return "chat_session" }

// Message belongs to exactly one session and is cascade-deleted with it.
// SequenceNumber is the monotonic per-session ordering, assigned at insert.
type Message struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	SessionID       string         `gorm:"type:varchar(36);not null;index:idx_chat_message_session_seq,priority:1" json:"session_id"`
	Session         *Session       `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	UserID          int64          `gorm:"index;not null" json:"user_id"`
	Role            MessageRole    `gorm:"type:varchar(16);not null" json:"role"`
	Content         string         `gorm:"type:text;not null" json:"content"`
	MessageType     MessageType    `gorm:"type:varchar(16);not null;default:text" json:"message_type"`
	Metadata        datatypes.JSON `gorm:"type:json" json:"metadata"`
	Status          MessageStatus  `gorm:"type:varchar(16);not null;default:sent" json:"status"`
	ParentMessageID *string        `gorm:"type:varchar(36);index" json:"parent_message_id"`
	SequenceNumber  int            `gorm:"not null;index:idx_chat_message_session_seq,priority:2" json:"sequence_number"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "chat_message" }

// UserStats summarizes one user's history.
type UserStats struct {
	ActiveSessions   int64 `json:"active_sessions"`
	ArchivedSessions int64 `json:"archived_sessions"`
	TotalMessages    int64 `json:"total_messages"`
}
