package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestDedupeGuard_FirstReserveWins(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupeGuard(client, zap.NewNop())
	ctx := context.Background()
	project := uuid.New()

	ok, err := guard.Reserve(ctx, project, "check_in_reminder", "2026-03-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first reserve should succeed")
	}

	ok, err = guard.Reserve(ctx, project, "check_in_reminder", "2026-03-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second reserve for the same day must fail")
	}
}

func TestDedupeGuard_KindsAndDaysIsolated(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupeGuard(client, zap.NewNop())
	ctx := context.Background()
	project := uuid.New()

	if ok, _ := guard.Reserve(ctx, project, "check_in_reminder", "2026-03-02"); !ok {
		t.Fatal("check-in reserve should succeed")
	}
	if ok, _ := guard.Reserve(ctx, project, "check_out_reminder", "2026-03-02"); !ok {
		t.Fatal("check-out is a separate reservation")
	}
	if ok, _ := guard.Reserve(ctx, project, "check_in_reminder", "2026-03-03"); !ok {
		t.Fatal("the next day is a separate reservation")
	}
}

func TestDedupeGuard_ProjectsIsolated(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupeGuard(client, zap.NewNop())
	ctx := context.Background()

	if ok, _ := guard.Reserve(ctx, uuid.New(), "check_in_reminder", "2026-03-02"); !ok {
		t.Fatal("reserve should succeed")
	}
	if ok, _ := guard.Reserve(ctx, uuid.New(), "check_in_reminder", "2026-03-02"); !ok {
		t.Fatal("a different project must get its own reservation")
	}
}

func TestDedupeGuard_Release(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	guard := NewDedupeGuard(client, zap.NewNop())
	ctx := context.Background()
	project := uuid.New()

	if ok, _ := guard.Reserve(ctx, project, "check_in_reminder", "2026-03-02"); !ok {
		t.Fatal("reserve should succeed")
	}
	if err := guard.Release(ctx, project, "check_in_reminder", "2026-03-02"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if ok, _ := guard.Reserve(ctx, project, "check_in_reminder", "2026-03-02"); !ok {
		t.Fatal("reserve should succeed again after release")
	}
}
