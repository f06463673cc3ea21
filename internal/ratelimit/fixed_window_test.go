package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, limit int, window time.Duration) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := New(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:ratelimit", limit, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return l, mr
}

func TestAllowWithinQuota(t *testing.T) {
	l, _ := newLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "user:1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow(ctx, "user:1") {
		t.Fatal("request over quota should be denied")
	}
	// other keys are independent
	if !l.Allow(ctx, "user:2") {
		t.Fatal("different key must have its own quota")
	}
}

func TestFailsOpenWhenRedisDown(t *testing.T) {
	l, mr := newLimiter(t, 1, time.Minute)
	mr.Close()
	if !l.Allow(context.Background(), "user:1") {
		t.Fatal("limiter must fail open when redis is unavailable")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, "", 1, time.Second); err == nil {
		t.Fatal("nil client must be rejected")
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if _, err := New(client, "", 0, time.Second); err == nil {
		t.Fatal("zero limit must be rejected")
	}
}
