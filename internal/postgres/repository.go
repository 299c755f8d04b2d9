package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SLAMon/SLAMon/internal/domain"
)

// ExecutionRepository is the durable audit trail of task executions.
type ExecutionRepository interface {
	RecordExecution(ctx context.Context, exec *domain.TaskExecution) error
	ListByTask(ctx context.Context, taskID string) ([]*domain.TaskExecution, error)
	ListRecent(ctx context.Context, agentID string, limit int) ([]*domain.TaskExecution, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgxpool with the ExecutionRepository interface.
func NewRepository(pool *pgxpool.Pool) ExecutionRepository {
	return &repository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *repository) RecordExecution(ctx context.Context, exec *domain.TaskExecution) error {
	if exec.ID == "" {
		exec.ID = uuid.New().String()
	}
	if exec.ExecutedAt.IsZero() {
		exec.ExecutedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_executions
			(id, task_id, task_type, task_version, agent_id, status, error, duration_ms, result_posted, executed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		exec.ID, exec.TaskID, exec.TaskType, exec.TaskVersion, exec.AgentID,
		string(exec.Status), exec.Error, exec.Duration.Milliseconds(), exec.ResultPosted, exec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("record execution for task %s: %w", exec.TaskID, err)
	}
	return nil
}

// ListByTask returns every execution of taskID, oldest first. A task that
// was never executed yields an empty slice.
func (r *repository) ListByTask(ctx context.Context, taskID string) ([]*domain.TaskExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, task_type, task_version, agent_id, status, error,
		       duration_ms, result_posted, executed_at
		FROM task_executions
		WHERE task_id = $1
		ORDER BY executed_at ASC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions for task %s: %w", taskID, err)
	}
	return collect(rows)
}

// ListRecent returns the newest executions, optionally filtered by agent.
func (r *repository) ListRecent(ctx context.Context, agentID string, limit int) ([]*domain.TaskExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, task_id, task_type, task_version, agent_id, status, error,
		       duration_ms, result_posted, executed_at
		FROM task_executions
		WHERE $1 = '' OR agent_id = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent executions: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]*domain.TaskExecution, error) {
	defer rows.Close()
	execs := []*domain.TaskExecution{}
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// scanExecution reads an execution row from any pgx row type.
func scanExecution(row interface {
	Scan(...any) error
}) (*domain.TaskExecution, error) {
	var exec domain.TaskExecution
	var status string
	var durationMs int64
	err := row.Scan(
		&exec.ID, &exec.TaskID, &exec.TaskType, &exec.TaskVersion, &exec.AgentID,
		&status, &exec.Error, &durationMs, &exec.ResultPosted, &exec.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec.Status = domain.Status(status)
	exec.Duration = time.Duration(durationMs) * time.Millisecond
	return &exec, nil
}
