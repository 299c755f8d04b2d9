// Package submitter posts tasks to a broker and delivers each task's
// outcome exactly once, by polling the broker until the task is terminal.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/pkg/telemetry"
)

// DefaultPollInterval is the delay before each result poll.
const DefaultPollInterval = 1000 * time.Millisecond

var (
	// ErrDuplicateTask is returned when a task id is already pending on the client.
	ErrDuplicateTask = errors.New("task already pending")
	// ErrClosed is returned by Submit after the client was reset or closed.
	ErrClosed = errors.New("submitter client closed")
)

// Broker is the submitter side of the broker protocol.
type Broker interface {
	SubmitTask(ctx context.Context, task *domain.Task) error
	FetchTask(ctx context.Context, taskID string) (*domain.Task, error)
}

// Callback receives a task's outcome. It is called at most once per task,
// from a timer goroutine or from Submit itself.
type Callback interface {
	Succeeded(task *domain.Task)
	Failed(task *domain.Task)
}

// CallbackFuncs adapts a pair of functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	OnSuccess func(*domain.Task)
	OnFailure func(*domain.Task)
}

func (c CallbackFuncs) Succeeded(t *domain.Task) {
	if c.OnSuccess != nil {
		c.OnSuccess(t)
	}
}

func (c CallbackFuncs) Failed(t *domain.Task) {
	if c.OnFailure != nil {
		c.OnFailure(t)
	}
}

type pending struct {
	task     *domain.Task
	future   *Future
	callback Callback
	timer    *time.Timer
}

// Client correlates submitted tasks with their outcomes for one broker.
// Obtain clients from a Registry.
type Client struct {
	url            string
	broker         Broker
	logger         *slog.Logger
	interval       time.Duration
	requestTimeout time.Duration
	now            func() time.Time

	// ctx bounds every poll; reset cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*pending
	closed  bool
}

func newClient(url string, b Broker, o options) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:            url,
		broker:         b,
		logger:         o.logger.With(slog.String("broker_url", url)),
		interval:       o.interval,
		requestTimeout: o.requestTimeout,
		now:            o.now,
		ctx:            ctx,
		cancel:         cancel,
		pending:        make(map[string]*pending),
	}
}

// URL returns the broker URL this client serves.
func (c *Client) URL() string { return c.url }

// Pending reports how many tasks await an outcome.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether taskID awaits an outcome.
func (c *Client) IsPending(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[taskID]
	return ok
}

// Submit registers cb under task.ID and posts the task. A failed post
// resolves the task as failed before Submit returns, with task_error set to
// the failure. Otherwise the outcome arrives later through cb and the
// returned Future. cb may be nil.
//
// Submit only errors for tasks it never registered: a missing or duplicate
// id, or a closed client.
func (c *Client) Submit(ctx context.Context, task *domain.Task, cb Callback) (*Future, error) {
	if task == nil || task.ID == "" {
		return nil, errors.New("submit: task has no id")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, dup := c.pending[task.ID]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("submit %s: %w", task.ID, ErrDuplicateTask)
	}
	p := &pending{task: task, future: NewFuture(task.ID), callback: cb}
	c.pending[task.ID] = p
	c.mu.Unlock()
	telemetry.SubmitterPending.Inc()

	logger := c.logger.With(slog.String("task_id", task.ID))
	logger.Info("posting task", slog.String("task_type", task.Type), slog.Int("task_version", int(task.Version)))

	if err := c.broker.SubmitTask(ctx, task); err != nil {
		telemetry.SubmitterSubmissions.WithLabelValues("error").Inc()
		logger.Error("failed to post task", slog.String("error", err.Error()))
		c.failTask(p, err.Error())
		return p.future, nil
	}
	telemetry.SubmitterSubmissions.WithLabelValues("ok").Inc()

	c.schedule(p)
	return p.future, nil
}

// Abort stops tracking taskID. The broker is not told; an outcome that
// arrives afterwards is dropped. It reports whether the task was pending.
func (c *Client) Abort(taskID string) bool {
	c.mu.Lock()
	p, ok := c.pending[taskID]
	if ok {
		delete(c.pending, taskID)
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	c.logger.Info("task aborted", slog.String("task_id", taskID))
	telemetry.SubmitterPending.Dec()
	if p.future.Resolve(nil, &domain.AbortedError{TaskID: taskID}) {
		telemetry.SubmitterOutcomes.WithLabelValues("aborted").Inc()
	}
	return true
}

// current reports whether p is still the pending entry for its task id. An
// entry that was aborted and then resubmitted under the same id is a
// different entry.
func (c *Client) current(p *pending) bool {
	return c.pending[p.task.ID] == p
}

// schedule arms the next poll for p unless it is no longer pending. Only
// one timer exists per entry at a time.
func (c *Client) schedule(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(p) || c.closed {
		return
	}
	p.timer = time.AfterFunc(c.interval, func() { c.poll(p) })
}

func (c *Client) poll(p *pending) {
	c.mu.Lock()
	ok := c.current(p)
	c.mu.Unlock()
	if !ok {
		return
	}
	taskID := p.task.ID

	ctx, cancel := context.WithTimeout(c.ctx, c.requestTimeout)
	defer cancel()
	logger := c.logger.With(slog.String("task_id", taskID))

	got, err := c.broker.FetchTask(ctx, taskID)
	switch {
	case err != nil && domain.IsFatal(err):
		telemetry.SubmitterPolls.WithLabelValues("fatal").Inc()
		logger.Error("request error while polling for result", slog.String("error", err.Error()))
		c.failTask(p, err.Error())
	case err != nil:
		telemetry.SubmitterPolls.WithLabelValues("retry").Inc()
		logger.Warn("temporary error while polling for result", slog.String("error", err.Error()))
		c.schedule(p)
	case got.IsTerminal():
		telemetry.SubmitterPolls.WithLabelValues("terminal").Inc()
		logger.Info("result received")
		c.complete(p, got)
	default:
		telemetry.SubmitterPolls.WithLabelValues("pending").Inc()
		logger.Debug("result not yet available")
		c.schedule(p)
	}
}

// failTask stamps p's task with a local failure and completes it.
func (c *Client) failTask(p *pending, msg string) {
	failed := *p.task
	failed.Fail(msg, c.now())
	c.complete(p, &failed)
}

// complete removes the task's entry and delivers its outcome. An entry that
// is already gone means the task was aborted or reset meanwhile.
func (c *Client) complete(p *pending, task *domain.Task) {
	c.mu.Lock()
	ok := c.current(p)
	if ok {
		delete(c.pending, p.task.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	telemetry.SubmitterPending.Dec()

	if !p.future.Resolve(task, nil) {
		return
	}
	if task.Succeeded() {
		telemetry.SubmitterOutcomes.WithLabelValues("succeeded").Inc()
		if p.callback != nil {
			p.callback.Succeeded(task)
		}
		return
	}
	telemetry.SubmitterOutcomes.WithLabelValues("failed").Inc()
	if p.callback != nil {
		p.callback.Failed(task)
	}
}

// reset drops every pending task without delivering outcomes, stops their
// timers and cancels in-flight polls. The client accepts no new tasks.
func (c *Client) reset() {
	c.mu.Lock()
	c.closed = true
	dropped := c.pending
	c.pending = make(map[string]*pending)
	for _, p := range dropped {
		if p.timer != nil {
			p.timer.Stop()
		}
	}
	c.mu.Unlock()
	c.cancel()

	for id, p := range dropped {
		telemetry.SubmitterPending.Dec()
		p.future.Resolve(nil, &domain.AbortedError{TaskID: id})
	}
	if len(dropped) > 0 {
		c.logger.Info("dropped pending tasks", slog.Int("count", len(dropped)))
	}
}
