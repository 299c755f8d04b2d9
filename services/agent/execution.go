package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/pkg/retry"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
)

// execute runs one task through its handler and reports the outcome to the
// broker. Handler failures, including a missing handler, become task_error;
// they never stop the agent.
func (a *Agent) execute(ctx context.Context, task *domain.Task) {
	ctx, span := otel.Tracer("agent").Start(ctx, "agent.execute_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("task.type", task.Type),
		attribute.Int("task.version", int(task.Version)),
		attribute.String("agent.id", a.id),
	)

	log := a.logger.With(
		slog.String("task_id", task.ID),
		slog.String("task_type", task.Type),
		slog.Int("task_version", int(task.Version)),
	)

	telemetry.AgentTasksInFlight.Inc()
	defer telemetry.AgentTasksInFlight.Dec()

	start := time.Now()
	result, execErr := a.run(ctx, task)
	elapsed := time.Since(start)
	telemetry.AgentTaskDurationSeconds.WithLabelValues(task.Type).Observe(elapsed.Seconds())

	status := domain.StatusCompleted
	if execErr != nil {
		status = domain.StatusError
		task.Fail(execErr.Error(), a.now())
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "task failed")
		log.Warn("task failed", slog.String("error", execErr.Error()), slog.Int64("duration_ms", elapsed.Milliseconds()))
		a.listeners.TaskError(execErr.Error())
		telemetry.AgentTasksProcessed.WithLabelValues(task.Type, "error").Inc()
	} else {
		task.Complete(result, a.now())
		log.Info("task completed", slog.Int64("duration_ms", elapsed.Milliseconds()))
		a.listeners.TaskCompleted()
		telemetry.AgentTasksProcessed.WithLabelValues(task.Type, "completed").Inc()
	}

	postErr := a.postResult(ctx, task, log)
	if postErr != nil {
		span.RecordError(postErr)
	}

	a.record(ctx, &domain.TaskExecution{
		ID:           uuid.NewString(),
		TaskID:       task.ID,
		TaskType:     task.Type,
		TaskVersion:  int(task.Version),
		AgentID:      a.id,
		Status:       status,
		Error:        task.Error,
		Duration:     elapsed,
		ResultPosted: postErr == nil,
		ExecutedAt:   start.UTC(),
	}, log)
}

// run looks up and invokes the handler, turning a panic into an error.
func (a *Agent) run(ctx context.Context, task *domain.Task) (result map[string]any, err error) {
	h, err := a.registry.Lookup(task.Type, int(task.Version))
	if err != nil {
		return nil, err
	}

	if a.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.taskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("handler %s panicked: %v", task.Type, r)
		}
	}()

	data := task.Data
	if data == nil {
		data = map[string]any{}
	}
	return h.Execute(ctx, data)
}

// postResult reports the task, retrying temporary failures until the broker
// accepts it or ctx ends. A fatal failure is handled per the result policy.
func (a *Agent) postResult(ctx context.Context, task *domain.Task, log *slog.Logger) error {
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: retry.Unlimited,
		BaseDelay:   a.resultBaseDelay,
		MaxDelay:    a.resultMaxDelay,
		Retryable:   domain.IsTemporary,
		OnRetry: func(attempt int, err error) {
			telemetry.AgentResultRetriesTotal.Inc()
			log.Warn("result post failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		},
	}, func() error {
		return a.broker.PostResult(ctx, task)
	})
	if err == nil {
		return nil
	}

	switch {
	case domain.IsFatal(err):
		telemetry.AgentResultFailuresTotal.Inc()
		if a.resultPolicy == ResultPolicyEscalate {
			log.Error("result rejected by broker, stopping agent", slog.String("error", err.Error()))
			a.escalate(err)
		} else {
			log.Error("result rejected by broker, discarding", slog.String("error", err.Error()))
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn("result post abandoned on shutdown", slog.String("error", err.Error()))
	default:
		log.Error("result post failed", slog.String("error", err.Error()))
	}
	return err
}

func (a *Agent) record(ctx context.Context, exec *domain.TaskExecution, log *slog.Logger) {
	if len(a.recorders) == 0 {
		return
	}
	// The task context may already be gone; the audit write gets its own.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, r := range a.recorders {
		if err := r.RecordExecution(ctx, exec); err != nil {
			log.Error("failed to record execution", slog.String("error", err.Error()))
		}
	}
}
