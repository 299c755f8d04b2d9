package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Agent ───────────────────────────────────────────────────────────────────

	AgentPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "polls_total",
		Help:      "Task requests sent to the broker, labelled by outcome (ok, temporary, fatal).",
	}, []string{"outcome"})

	AgentTasksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "tasks_received_total",
		Help:      "Tasks handed out by the broker and dispatched to the pool.",
	})

	AgentTasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "tasks_processed_total",
		Help:      "Tasks executed, labelled by task_type and status (completed, error).",
	}, []string{"task_type", "status"})

	AgentTasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "tasks_inflight",
		Help:      "Tasks currently being executed or reported.",
	})

	AgentTaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "task_duration_seconds",
		Help:      "Handler execution time in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"task_type"})

	AgentResultRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "result_post_retries_total",
		Help:      "Result posts retried after a temporary broker failure.",
	})

	AgentResultFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "result_post_failures_total",
		Help:      "Results abandoned after a fatal broker response.",
	})

	AgentConnectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slamon",
		Subsystem: "agent",
		Name:      "connection_state",
		Help:      "Current connection state: 0 connecting, 1 connected, 2 disconnected.",
	})

	// ─── Submitter ───────────────────────────────────────────────────────────────

	SubmitterSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "submitter",
		Name:      "submissions_total",
		Help:      "Tasks posted to the broker, labelled by outcome (ok, error).",
	}, []string{"outcome"})

	SubmitterPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "submitter",
		Name:      "polls_total",
		Help:      "Status polls, labelled by outcome (pending, terminal, retry, fatal).",
	}, []string{"outcome"})

	SubmitterOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slamon",
		Subsystem: "submitter",
		Name:      "outcomes_total",
		Help:      "Task outcomes, labelled by result (succeeded, failed, aborted).",
	}, []string{"result"})

	SubmitterPending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slamon",
		Subsystem: "submitter",
		Name:      "pending_tasks",
		Help:      "Tasks awaiting an outcome.",
	})
)
