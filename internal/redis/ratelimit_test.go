package redis

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  5,
		Window: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
}

func TestRateLimiter_RejectsOverLimit(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  3,
		Window: time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "ip:10.0.0.2"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	result, err := limiter.Allow(ctx, "ip:10.0.0.2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("request over the limit should be rejected")
	}
	if result.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", result.Remaining)
	}
}

func TestRateLimiter_KeysIsolated(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	limiter := NewRateLimiter(client, zap.NewNop(), RateLimitConfig{
		Limit:  1,
		Window: time.Minute,
	})
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "ip:10.0.0.3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := limiter.Allow(ctx, "ip:10.0.0.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("a different key must have its own window")
	}
}
