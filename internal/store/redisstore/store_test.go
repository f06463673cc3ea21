package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/githaohao/xzxz-lm-chat/internal/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestStatsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetStats(ctx, 1); ok {
		t.Fatal("expected miss on empty cache")
	}

	want := chat.UserStats{ActiveSessions: 2, ArchivedSessions: 1, TotalMessages: 30}
	s.SetStats(ctx, 1, want)

	got, ok := s.GetStats(ctx, 1)
	if !ok {
		t.Fatal("expected hit after set")
	}
	if *got != want {
		t.Fatalf("stats = %+v, want %+v", got, want)
	}

	// pins the cache to one user
	if _, ok := s.GetStats(ctx, 2); ok {
		t.Fatal("user 2 must not see user 1 stats")
	}
}

func TestInvalidateStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SetStats(ctx, 1, chat.UserStats{TotalMessages: 5})
	s.InvalidateStats(ctx, 1)
	if _, ok := s.GetStats(ctx, 1); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestGetStatsDegradesOnDownRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	mr.Close()

	if _, ok := s.GetStats(context.Background(), 1); ok {
		t.Fatal("down redis must read as a miss, not an error")
	}
}
