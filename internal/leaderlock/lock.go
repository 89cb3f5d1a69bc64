// Package leaderlock is the single-writer safety guard: only one process
// should run the Cron Scheduler, Fetch Worker and Notifications-Send loop
// against a given database at a time. Adapted from a Redis-backed
// distributed locker, trimmed to the acquire/refresh/release cycle
// cmd/main.go actually drives.
package leaderlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a Redis SETNX lease held by one process identified by ownerID.
type Lock struct {
	client  *redis.Client
	key     string
	ownerID string
}

func New(client *redis.Client, key, ownerID string) *Lock {
	return &Lock{client: client, key: fmt.Sprintf("scheduler:leader:%s", key), ownerID: ownerID}
}

// Acquire attempts to take the lease, returning false if another owner
// already holds it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leaderlock: acquire: %w", err)
	}
	return ok, nil
}

// Refresh extends the lease's TTL, but only if still held by this owner.
func (l *Lock) Refresh(ctx context.Context, ttl time.Duration) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.ownerID, ttl.Milliseconds()).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("leaderlock: refresh: %w", err)
	}
	return nil
}

// Release drops the lease, but only if still held by this owner.
func (l *Lock) Release(ctx context.Context) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	_, err := script.Run(ctx, l.client, []string{l.key}, l.ownerID).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("leaderlock: release: %w", err)
	}
	return nil
}
