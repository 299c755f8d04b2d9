//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/SLAMon/SLAMon/internal/domain"
)

var testPostgresDSN string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgCtr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("slamon"),
		tcPostgres.WithUsername("slamon"),
		tcPostgres.WithPassword("slamon"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer pgCtr.Terminate(ctx) //nolint:errcheck

	dsn, err := pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}
	testPostgresDSN = dsn

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	if _, err := Migrate(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	pool.Close()

	return m.Run()
}

// newPool connects to the test container and truncates the table on cleanup.
func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE task_executions") //nolint:errcheck
		pool.Close()
	})
	return pool
}

func makeExecution(taskID, agentID string, at time.Time) *domain.TaskExecution {
	return &domain.TaskExecution{
		TaskID:       taskID,
		TaskType:     "wait",
		TaskVersion:  1,
		AgentID:      agentID,
		Status:       domain.StatusCompleted,
		Duration:     1500 * time.Millisecond,
		ResultPosted: true,
		ExecutedAt:   at,
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	pool := newPool(t)
	ctx := context.Background()

	applied, err := Migrate(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_task_executions.sql", "002_create_schema_migrations.sql"}, applied)

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&n))
	assert.Equal(t, 2, n)
}

func TestRepository_RecordExecution_ListByTask(t *testing.T) {
	repo := NewRepository(newPool(t))
	ctx := context.Background()
	taskID := uuid.New().String()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := makeExecution(taskID, "agent-1", base)
	second := makeExecution(taskID, "agent-2", base.Add(time.Second))
	second.Status = domain.StatusError
	second.Error = "no handler registered"
	second.ResultPosted = false

	require.NoError(t, repo.RecordExecution(ctx, second))
	require.NoError(t, repo.RecordExecution(ctx, first))
	assert.NotEmpty(t, first.ID, "ID must be assigned")

	got, err := repo.ListByTask(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "agent-1", got[0].AgentID)
	assert.Equal(t, 1, got[0].TaskVersion)
	assert.Equal(t, 1500*time.Millisecond, got[0].Duration)
	assert.True(t, got[0].ResultPosted)

	assert.Equal(t, domain.StatusError, got[1].Status)
	assert.Equal(t, "no handler registered", got[1].Error)
	assert.False(t, got[1].ResultPosted)
}

func TestRepository_ListByTask_Unknown(t *testing.T) {
	repo := NewRepository(newPool(t))

	got, err := repo.ListByTask(context.Background(), "never-ran")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRepository_ListRecent_FilterAndLimit(t *testing.T) {
	repo := NewRepository(newPool(t))
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordExecution(ctx,
			makeExecution(uuid.New().String(), "agent-a", base.Add(time.Duration(i)*time.Second))))
	}
	require.NoError(t, repo.RecordExecution(ctx, makeExecution(uuid.New().String(), "agent-b", base)))

	all, err := repo.ListRecent(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := repo.ListRecent(ctx, "agent-a", 2)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].ExecutedAt.After(mine[1].ExecutedAt), "newest first")
	for _, e := range mine {
		assert.Equal(t, "agent-a", e.AgentID)
	}
}
