package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultLeaderKey is the Redis key holding the scheduler lease.
const DefaultLeaderKey = "slamon:scheduler:leader"

var (
	renewScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
)

// RedisLeader is a lease-based Leader. The lease is taken with SETNX and
// renewed only by its owner; it lapses on its own if the owner dies.
type RedisLeader struct {
	client     redis.UniversalClient
	key        string
	instanceID string
	ttl        time.Duration
	logger     *slog.Logger
}

// NewRedisLeader creates a RedisLeader. ttl should outlast the gap between
// probe runs so leadership stays with one instance.
func NewRedisLeader(client redis.UniversalClient, key, instanceID string, ttl time.Duration, logger *slog.Logger) *RedisLeader {
	if key == "" {
		key = DefaultLeaderKey
	}
	return &RedisLeader{client: client, key: key, instanceID: instanceID, ttl: ttl, logger: logger}
}

// Acquire takes or renews the lease and reports whether this instance holds it.
func (l *RedisLeader) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader election SetNX: %w", err)
	}
	if ok {
		l.logger.Info("acquired scheduler leadership", slog.String("instance_id", l.instanceID))
		return true, nil
	}

	result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renewal: %w", err)
	}
	return result == 1, nil
}

// Release gives up the lease if this instance holds it.
func (l *RedisLeader) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader release: %w", err)
	}
	return nil
}
