package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// reserveTTL keeps a reservation alive past the end of its calendar day.
// Keys carry the day, so a stale key from yesterday can never suppress
// today's dispatch; the TTL only bounds memory.
const reserveTTL = 26 * time.Hour

// DedupeGuard is the fast-path reservation in front of the authoritative
// dispatch-claim row: an atomic SET NX keyed by (day, kind, project). When
// two invocations overlap, at most one acquires the reservation and the
// loser skips without touching the provider. Redis being down only removes
// the fast path; the DB claim still protects against double sends.
type DedupeGuard struct {
	client *Client
	logger *zap.Logger
}

// NewDedupeGuard creates a dedupe guard on the given client.
func NewDedupeGuard(client *Client, logger *zap.Logger) *DedupeGuard {
	return &DedupeGuard{
		client: client,
		logger: logger,
	}
}

func (g *DedupeGuard) buildKey(projectID uuid.UUID, kind, day string) string {
	return fmt.Sprintf("dispatch:%s:%s:%s", day, kind, projectID)
}

// Reserve acquires the day-scoped reservation. Returns false when another
// run already holds it.
func (g *DedupeGuard) Reserve(ctx context.Context, projectID uuid.UUID, kind, day string) (bool, error) {
	key := g.buildKey(projectID, kind, day)

	set, err := g.client.rdb.SetNX(ctx, key, "claimed", reserveTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		g.logger.Debug("dispatch reservation already held",
			zap.String("project_id", projectID.String()),
			zap.String("kind", kind),
			zap.String("day", day),
		)
	}

	return set, nil
}

// Release drops a reservation. The dispatcher calls this when the DB claim
// write fails after a successful reserve, so the transient error does not
// block the rest of the day's in-window retries.
func (g *DedupeGuard) Release(ctx context.Context, projectID uuid.UUID, kind, day string) error {
	if err := g.client.rdb.Del(ctx, g.buildKey(projectID, kind, day)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
