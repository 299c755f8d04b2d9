//go:build integration

package redis

import (
	"context"
	"log"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/events"
)

var testRedisURL string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	redisCtr, err := tcRedis.Run(ctx, "redis:7-alpine")
	if err != nil {
		log.Fatalf("start redis container: %v", err)
	}
	defer redisCtr.Terminate(ctx) //nolint:errcheck

	testRedisURL, err = redisCtr.ConnectionString(ctx)
	if err != nil {
		log.Fatalf("redis connection string: %v", err)
	}
	return m.Run()
}

// newRedisClient returns a client connected to the test container and
// flushes the database on cleanup so tests don't interfere with each other.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client, err := NewClient(testRedisURL)
	require.NoError(t, err)
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestStateStore_RecordExecution_RoundTrip(t *testing.T) {
	client := newRedisClient(t)
	store := NewStateStore(client)
	ctx := context.Background()

	exec := &domain.TaskExecution{
		ID:         "exec-1",
		TaskID:     "task-1",
		TaskType:   "wait",
		AgentID:    "agent-1",
		Status:     domain.StatusError,
		Error:      "boom",
		Duration:   250 * time.Millisecond,
		ExecutedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.RecordExecution(ctx, exec))

	status, err := store.GetStatus(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, status)

	got, err := store.GetExecution(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, exec.Error, got.Error)
	assert.Equal(t, exec.Duration, got.Duration)
	assert.True(t, exec.ExecutedAt.Equal(got.ExecutedAt))

	ttl, err := client.TTL(ctx, statusKey("task-1")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

func TestStateStore_Missing(t *testing.T) {
	store := NewStateStore(newRedisClient(t))
	ctx := context.Background()

	_, err := store.GetStatus(ctx, "nope")
	var nf *domain.TaskNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nope", nf.TaskID)

	_, err = store.GetExecution(ctx, "nope")
	require.ErrorAs(t, err, &nf)

	_, err = store.GetAgentState(ctx, "ghost")
	assert.Error(t, err)
}

func TestStateListener_WritesAgentState(t *testing.T) {
	store := NewStateStore(newRedisClient(t))
	ctx := context.Background()

	state := events.Connecting
	l := NewStateListener(store, "agent-7", func() events.State { return state }, slog.Default())

	l.ConnectionStateChanged(events.Connecting)
	got, err := store.GetAgentState(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "CONNECTING", got)

	state = events.Connected
	l.PollScheduled(time.Now())
	got, err = store.GetAgentState(ctx, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED", got)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	client := newRedisClient(t)
	limiter := NewRateLimiter(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "schedule")
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed", i+1)
	}
	ok, err := limiter.Allow(ctx, "schedule")
	require.NoError(t, err)
	assert.False(t, ok, "fourth call exceeds the limit")

	ok, err = limiter.Allow(ctx, "other-key")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	client := newRedisClient(t)
	limiter := NewRateLimiter(client, 1, 200*time.Millisecond)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Denied calls count too, so wait for both to fall out of the window.
	time.Sleep(300 * time.Millisecond)
	ok, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}
