package chat

import (
	"context"
	"time"
)

type EventKind string

const (
	EventMessageCreated EventKind = "message.created"
	EventMessageDeleted EventKind = "message.deleted"
	EventSessionDeleted EventKind = "session.deleted"
)

// Event is published after a history mutation commits. The worker consumes
// these to reconcile the denormalized session counters.
type Event struct {
	ID         string    `json:"id"`
	Kind       EventKind `json:"kind"`
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher decouples the service from the broker. Publishing is
// best-effort: a broker outage must not fail the user request.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev Event) error
}

// StatsCache caches per-user stats between mutations.
type StatsCache interface {
	GetStats(ctx context.Context, userID int64) (*UserStats, bool)
	SetStats(ctx context.Context, userID int64, stats UserStats)
	InvalidateStats(ctx context.Context, userID int64)
}
