package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisGuard holds a redislock key per document for the duration of a run.
type RedisGuard struct {
	client *redis.Client
	locker *redislock.Client
	ttl    time.Duration
}

// NewRedisGuard connects to addr and verifies the connection.
func NewRedisGuard(ctx context.Context, addr string, ttl time.Duration) (*RedisGuard, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return newRedisGuard(client, ttl), nil
}

func newRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisGuard{client: client, locker: redislock.New(client), ttl: ttl}
}

func lockKey(documentID string) string {
	return "lock:document:" + documentID
}

func (g *RedisGuard) Acquire(ctx context.Context, documentID string) (func(context.Context), error) {
	lock, err := g.locker.Obtain(ctx, lockKey(documentID), g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrRunInFlight, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to obtain run lock: %w", err)
	}
	return func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("Failed to release run lock.", "documentId", documentID, "error", err)
		}
	}, nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}

var _ RunGuard = (*RedisGuard)(nil)
