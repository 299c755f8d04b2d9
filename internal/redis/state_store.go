package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SLAMon/SLAMon/internal/domain"
)

const (
	execTTL       = 24 * time.Hour
	agentStateTTL = 5 * time.Minute
)

func statusKey(taskID string) string      { return "slamon:task:status:" + taskID }
func execKey(taskID string) string        { return "slamon:task:exec:" + taskID }
func agentStateKey(agentID string) string { return "slamon:agent:state:" + agentID }

// StateStore keeps live, expiring views of task outcomes and agent
// connection state for dashboards. It is not the source of truth; the
// broker is.
type StateStore interface {
	RecordExecution(ctx context.Context, exec *domain.TaskExecution) error
	GetStatus(ctx context.Context, taskID string) (domain.Status, error)
	GetExecution(ctx context.Context, taskID string) (*domain.TaskExecution, error)
	SetAgentState(ctx context.Context, agentID, state string) error
	GetAgentState(ctx context.Context, agentID string) (string, error)
}

type stateStore struct {
	client redis.UniversalClient
}

// NewStateStore creates a Redis-backed StateStore.
func NewStateStore(client redis.UniversalClient) StateStore {
	return &stateStore{client: client}
}

// NewClient creates a Redis client from a redis:// URL or a bare host:port.
func NewClient(addr string) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if len(addr) > 8 && (addr[:8] == "redis://" || (len(addr) > 9 && addr[:9] == "rediss://")) {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 1 * time.Second
	opts.WriteTimeout = 1 * time.Second
	opts.PoolSize = 10
	return redis.NewClient(opts), nil
}

// RecordExecution stores the execution and its status in one transaction.
func (s *stateStore) RecordExecution(ctx context.Context, exec *domain.TaskExecution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statusKey(exec.TaskID), string(exec.Status), execTTL)
	pipe.Set(ctx, execKey(exec.TaskID), data, execTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record execution for %s: %w", exec.TaskID, err)
	}
	return nil
}

func (s *stateStore) GetStatus(ctx context.Context, taskID string) (domain.Status, error) {
	val, err := s.client.Get(ctx, statusKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.TaskNotFoundError{TaskID: taskID}
		}
		return "", fmt.Errorf("redis get status for %s: %w", taskID, err)
	}
	return domain.Status(val), nil
}

func (s *stateStore) GetExecution(ctx context.Context, taskID string) (*domain.TaskExecution, error) {
	data, err := s.client.Get(ctx, execKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return nil, fmt.Errorf("redis get execution for %s: %w", taskID, err)
	}
	var exec domain.TaskExecution
	if err := json.Unmarshal(data, &exec); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &exec, nil
}

// SetAgentState records the agent's connection state. The key expires so a
// dead agent disappears instead of looking connected forever.
func (s *stateStore) SetAgentState(ctx context.Context, agentID, state string) error {
	if err := s.client.Set(ctx, agentStateKey(agentID), state, agentStateTTL).Err(); err != nil {
		return fmt.Errorf("redis set agent state for %s: %w", agentID, err)
	}
	return nil
}

func (s *stateStore) GetAgentState(ctx context.Context, agentID string) (string, error) {
	val, err := s.client.Get(ctx, agentStateKey(agentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("no state recorded for agent %s", agentID)
		}
		return "", fmt.Errorf("redis get agent state for %s: %w", agentID, err)
	}
	return val, nil
}
