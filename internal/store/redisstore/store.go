package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
)

const statsTTL = 60 * time.Second

// Store wraps the redis client used for the user-stats cache.
type Store struct {
	client *redis.Client
	prefix string
	log    *zap.Logger
}

func New(addr, password string, db int, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		prefix: "chat",
		log:    log,
	}
}

// NewWithClient is for tests running against miniredis.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client, prefix: "chat", log: zap.NewNop()}
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) statsKey(userID int64) string {
	return fmt.Sprintf("%s:stats:%d", s.prefix, userID)
}

// GetStats returns cached stats. Cache failures degrade to a miss.
func (s *Store) GetStats(ctx context.Context, userID int64) (*chat.UserStats, bool) {
	raw, err := s.client.Get(ctx, s.statsKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("stats cache read failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return nil, false
	}
	var stats chat.UserStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, false
	}
	return &stats, true
}

func (s *Store) SetStats(ctx context.Context, userID int64, stats chat.UserStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, s.statsKey(userID), raw, statsTTL).Err(); err != nil {
		s.log.Warn("stats cache write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *Store) InvalidateStats(ctx context.Context, userID int64) {
	if err := s.client.Del(ctx, s.statsKey(userID)).Err(); err != nil {
		s.log.Warn("stats cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// Client exposes the underlying connection for components sharing it
// (rate limiting).
func (s *Store) Client() *redis.Client {
	return s.client
}
