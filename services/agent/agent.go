package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SLAMon/SLAMon/internal/broker"
	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/events"
	"github.com/SLAMon/SLAMon/internal/handlers"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
)

// DefaultBackoff is how long the loop waits after a temporary broker error.
const DefaultBackoff = 60 * time.Second

// ErrAlreadyRunning is returned when Run or Start is called on a running agent.
var ErrAlreadyRunning = errors.New("agent already running")

// Broker is the worker side of the broker protocol.
type Broker interface {
	RequestTasks(ctx context.Context, req broker.TasksRequest) (broker.TasksResponse, error)
	PostResult(ctx context.Context, task *domain.Task) error
}

// ExecutionRecorder receives an audit record after every task. Errors are
// logged and otherwise ignored.
type ExecutionRecorder interface {
	RecordExecution(ctx context.Context, exec *domain.TaskExecution) error
}

// ResultPolicy decides what a fatal result-post failure does to the agent.
type ResultPolicy int

const (
	// ResultPolicyDiscard logs the failure and drops the result.
	ResultPolicyDiscard ResultPolicy = iota
	// ResultPolicyEscalate stops the agent as if the task request had failed
	// fatally.
	ResultPolicyEscalate
)

// ParseResultPolicy maps "discard" and "escalate" to a ResultPolicy.
func ParseResultPolicy(s string) (ResultPolicy, error) {
	switch s {
	case "", "discard":
		return ResultPolicyDiscard, nil
	case "escalate":
		return ResultPolicyEscalate, nil
	}
	return 0, fmt.Errorf("unknown result policy %q (want discard or escalate)", s)
}

// Agent polls a broker for tasks it has handlers for and executes them on a
// bounded pool.
type Agent struct {
	id        string
	name      string
	broker    Broker
	registry  *handlers.Registry
	listeners events.Listeners
	recorders []ExecutionRecorder
	location  *broker.Location
	logger    *slog.Logger

	backoff         time.Duration
	taskTimeout     time.Duration
	resultPolicy    ResultPolicy
	resultBaseDelay time.Duration
	resultMaxDelay  time.Duration

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	// notifyMu serializes state notifications; mu guards the fields below.
	notifyMu  sync.Mutex
	mu        sync.Mutex
	state     events.State
	running   bool
	stop      context.CancelFunc
	done      chan struct{}
	err       error
	pool      *Pool
	escalated chan error
}

// Option configures an Agent.
type Option func(*Agent)

func WithLogger(l *slog.Logger) Option         { return func(a *Agent) { a.logger = l } }
func WithBackoff(d time.Duration) Option       { return func(a *Agent) { a.backoff = d } }
func WithTaskTimeout(d time.Duration) Option   { return func(a *Agent) { a.taskTimeout = d } }
func WithResultPolicy(p ResultPolicy) Option   { return func(a *Agent) { a.resultPolicy = p } }
func WithLocation(loc *broker.Location) Option { return func(a *Agent) { a.location = loc } }
func WithRecorder(r ExecutionRecorder) Option  { return func(a *Agent) { a.recorders = append(a.recorders, r) } }
func WithListener(l events.Listener) Option    { return func(a *Agent) { a.listeners.Add(l) } }

// WithResultRetry sets the backoff between result posts that failed
// temporarily. Delays grow quadratically from base up to max.
func WithResultRetry(base, max time.Duration) Option {
	return func(a *Agent) {
		a.resultBaseDelay = base
		a.resultMaxDelay = max
	}
}

// New constructs an Agent identified to the broker by id and name.
func New(id, name string, b Broker, registry *handlers.Registry, opts ...Option) *Agent {
	a := &Agent{
		id:              id,
		name:            name,
		broker:          b,
		registry:        registry,
		logger:          slog.Default(),
		backoff:         DefaultBackoff,
		resultBaseDelay: 100 * time.Millisecond,
		resultMaxDelay:  5 * time.Second,
		now:             time.Now,
		after:           time.After,
		state:           events.Disconnected,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(slog.String("agent_id", id))
	return a
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// AddListener registers l and returns a function that unregisters it.
func (a *Agent) AddListener(l events.Listener) (remove func()) {
	return a.listeners.Add(l)
}

// ConnectionState returns the current connection state. An agent that has
// never run is DISCONNECTED.
func (a *Agent) ConnectionState() events.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Running reports whether the loop is active.
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// setState records s and notifies listeners if it differs from the current
// state.
func (a *Agent) setState(s events.State) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()

	if changed {
		a.listeners.ConnectionStateChanged(s)
	}
}

// Run executes the loop with a pool of the given concurrency until the
// broker fails fatally, ctx ends, or Shutdown is called. Only a fatal
// failure produces an error. Tasks run with ctx, so cancelling it also
// cancels in-flight handlers; use Shutdown to stop polling without that.
func (a *Agent) Run(ctx context.Context, concurrency int) error {
	loopCtx, err := a.begin(ctx, concurrency)
	if err != nil {
		return err
	}
	a.finish(a.loop(loopCtx, ctx))
	return a.Join()
}

// Start runs the loop on a new goroutine. Use Join to collect its result.
func (a *Agent) Start(ctx context.Context, concurrency int) error {
	loopCtx, err := a.begin(ctx, concurrency)
	if err != nil {
		return err
	}
	go func() { a.finish(a.loop(loopCtx, ctx)) }()
	return nil
}

// Join waits for the loop to exit and returns its error.
func (a *Agent) Join() error {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

func (a *Agent) begin(ctx context.Context, concurrency int) (context.Context, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.running = true
	a.stop = cancel
	a.done = make(chan struct{})
	a.err = nil
	a.pool = NewPool(concurrency)
	a.escalated = make(chan error, 1)
	a.mu.Unlock()

	a.logger.Info("agent starting",
		slog.String("agent_name", a.name),
		slog.Int("concurrency", a.pool.Size()),
		slog.Any("capabilities", a.registry.Capabilities()),
	)
	a.setState(events.Connecting)
	return loopCtx, nil
}

func (a *Agent) finish(err error) {
	a.setState(events.Disconnected)
	a.mu.Lock()
	a.pool.Close()
	a.stop()
	a.running = false
	a.err = err
	close(a.done)
	a.mu.Unlock()
	a.logger.Info("agent stopped")
}

// Shutdown stops polling and closes the pool to new work, then waits for
// the loop to exit until ctx ends. In-flight tasks keep running; use Drain
// to wait for them.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	stop, done, pool := a.stop, a.done, a.pool
	a.mu.Unlock()
	if done == nil {
		return nil
	}
	stop()
	pool.Close()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("agent shutdown: loop did not exit in time: %w", ctx.Err())
	}
}

// Drain waits for accepted tasks to finish, including their result posts.
func (a *Agent) Drain(ctx context.Context) error {
	a.mu.Lock()
	pool := a.pool
	a.mu.Unlock()
	if pool == nil {
		return nil
	}
	return pool.Wait(ctx)
}

func (a *Agent) loop(loopCtx, taskCtx context.Context) error {
	a.mu.Lock()
	pool, escalated := a.pool, a.escalated
	a.mu.Unlock()

	for {
		if loopCtx.Err() != nil {
			return a.stopped(escalated)
		}

		resp, err := a.broker.RequestTasks(loopCtx, broker.TasksRequest{
			AgentID:      a.id,
			AgentName:    a.name,
			Capabilities: a.registry.Capabilities(),
			MaxTasks:     pool.Available(),
			Location:     a.location,
		})
		if err != nil {
			if loopCtx.Err() != nil {
				return a.stopped(escalated)
			}
			if domain.IsFatal(err) {
				telemetry.AgentPollsTotal.WithLabelValues("fatal").Inc()
				return a.fail(err)
			}
			telemetry.AgentPollsTotal.WithLabelValues("temporary").Inc()
			a.logger.Warn("task request failed, backing off",
				slog.String("error", err.Error()),
				slog.Duration("backoff", a.backoff),
			)
			a.listeners.TemporaryError(err.Error())
			a.setState(events.Disconnected)
			if cont, err := a.pause(loopCtx, escalated, a.backoff); !cont {
				return err
			}
			continue
		}

		telemetry.AgentPollsTotal.WithLabelValues("ok").Inc()
		a.setState(events.Connected)
		a.dispatch(taskCtx, pool, resp.Tasks)
		a.listeners.PollScheduled(resp.ReturnTime)

		wait := resp.ReturnTime.Sub(a.now())
		if wait < 0 {
			wait = 0
		}
		if cont, err := a.pause(loopCtx, escalated, wait); !cont {
			return err
		}
	}
}

// pause sleeps for d. It reports false when the loop must stop, along with
// the error to stop with.
func (a *Agent) pause(ctx context.Context, escalated <-chan error, d time.Duration) (bool, error) {
	select {
	case <-a.after(d):
		return true, nil
	case <-ctx.Done():
		return false, a.stopped(escalated)
	}
}

// stopped decides how a cancelled loop exits: with the escalated error if a
// task asked for one, cleanly otherwise.
func (a *Agent) stopped(escalated <-chan error) error {
	select {
	case err := <-escalated:
		return a.fail(err)
	default:
		return nil
	}
}

func (a *Agent) fail(err error) error {
	a.logger.Error("fatal broker error, stopping", slog.String("error", err.Error()))
	a.listeners.FatalError(err.Error())
	a.setState(events.Disconnected)
	a.mu.Lock()
	a.pool.Close()
	a.mu.Unlock()
	return err
}

// escalate routes a task-level fatal error into the loop and interrupts it.
// Only the first one is kept.
func (a *Agent) escalate(err error) {
	a.mu.Lock()
	ch, stop := a.escalated, a.stop
	a.mu.Unlock()
	select {
	case ch <- err:
	default:
	}
	stop()
}

func (a *Agent) dispatch(ctx context.Context, pool *Pool, tasks []*domain.Task) {
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if _, dup := seen[task.ID]; dup {
			a.logger.Warn("duplicate task in response, skipping", slog.String("task_id", task.ID))
			continue
		}
		seen[task.ID] = struct{}{}

		telemetry.AgentTasksReceived.Inc()
		a.listeners.TaskStarted()
		task := task
		if err := pool.Submit(ctx, func(ctx context.Context) { a.execute(ctx, task) }); err != nil {
			a.logger.Warn("task dropped, agent stopping",
				slog.String("task_id", task.ID),
				slog.String("error", err.Error()),
			)
			// Every TaskStarted is paired with a completion or an error.
			a.listeners.TaskError(fmt.Sprintf("task %s dropped: %v", task.ID, err))
		}
	}
}
