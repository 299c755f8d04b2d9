// Package scheduler submits SLA probe tasks on cron schedules and reports
// each run's outcome.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/SLAMon/SLAMon/internal/domain"
	"github.com/SLAMon/SLAMon/internal/submitter"
)

// Probe is a task submitted on a schedule.
type Probe struct {
	Name    string         `mapstructure:"name"`
	Cron    string         `mapstructure:"cron"`
	TestID  string         `mapstructure:"test_id"`
	Type    string         `mapstructure:"task_type"`
	Version int            `mapstructure:"task_version"`
	Data    map[string]any `mapstructure:"task_data"`
	// Timeout bounds how long a run waits for its outcome before aborting
	// the task. Zero uses the scheduler default.
	Timeout time.Duration `mapstructure:"timeout"`
}

// Validate checks the probe can be scheduled.
func (p Probe) Validate() error {
	if p.Name == "" {
		return errors.New("probe has no name")
	}
	if p.Type == "" {
		return fmt.Errorf("probe %q has no task_type", p.Name)
	}
	if _, err := cron.ParseStandard(p.Cron); err != nil {
		return fmt.Errorf("probe %q: parse cron %q: %w", p.Name, p.Cron, err)
	}
	return nil
}

// Submitter is the part of submitter.Client the scheduler uses.
type Submitter interface {
	Submit(ctx context.Context, task *domain.Task, cb submitter.Callback) (*submitter.Future, error)
	Abort(taskID string) bool
}

// Leader decides whether this instance fires probes. Only the holder of the
// lease submits, so replicas never double-probe.
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Limiter caps submissions per key across instances.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Result is the outcome of one probe run.
type Result struct {
	Probe    string
	TaskID   string
	Task     *domain.Task
	Err      error
	Started  time.Time
	Duration time.Duration
	// Skipped is set when the run did not submit, with the reason.
	Skipped string
}

// Succeeded reports whether the probe's task completed without error.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.Skipped == "" && r.Task != nil && r.Task.Succeeded()
}

// Scheduler fires probes on their cron schedules.
type Scheduler struct {
	client  Submitter
	probes  []Probe
	leader  Leader
	limiter Limiter
	timeout time.Duration
	logger  *slog.Logger
	report  func(Result)
	now     func() time.Time

	cron    *cron.Cron
	tracker *submitter.ItemTracker[string]

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithLeader(l Leader) Option            { return func(s *Scheduler) { s.leader = l } }
func WithLimiter(l Limiter) Option          { return func(s *Scheduler) { s.limiter = l } }
func WithLogger(l *slog.Logger) Option      { return func(s *Scheduler) { s.logger = l } }
func WithRunTimeout(d time.Duration) Option { return func(s *Scheduler) { s.timeout = d } }
func WithReporter(fn func(Result)) Option   { return func(s *Scheduler) { s.report = fn } }

// New validates probes and builds a Scheduler that submits through client.
func New(client Submitter, probes []Probe, opts ...Option) (*Scheduler, error) {
	if len(probes) == 0 {
		return nil, errors.New("no probes to schedule")
	}
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("duplicate probe name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	s := &Scheduler{
		client:  client,
		probes:  probes,
		timeout: 5 * time.Minute,
		logger:  slog.Default(),
		report:  func(Result) {},
		now:     time.Now,
		tracker: submitter.NewItemTracker[string](client),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.logger}),
		cron.SkipIfStillRunning(cronLogger{s.logger}),
	))
	return s, nil
}

// Start registers every probe and starts firing. Runs use ctx; cancelling it
// aborts the tasks of runs in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return errors.New("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, p := range s.probes {
		p := p
		if _, err := s.cron.AddFunc(p.Cron, func() { s.Fire(s.ctx, p) }); err != nil {
			s.cancel()
			return fmt.Errorf("schedule probe %q: %w", p.Name, err)
		}
	}
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.logger.Info("probe scheduled", slog.Time("next_run", e.Next))
	}
	return nil
}

// Stop stops firing, aborts the tasks of runs still waiting, and waits for
// those runs to return until ctx ends. Leadership is released.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	stopped := s.cron.Stop()
	if n := s.tracker.AbortAll(); n > 0 {
		s.logger.Info("aborted in-flight probes", slog.Int("count", n))
	}
	if cancel != nil {
		cancel()
	}

	var err error
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		err = fmt.Errorf("scheduler stop: runs still active: %w", ctx.Err())
	}
	if s.leader != nil {
		if rerr := s.leader.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("release leadership", slog.String("error", rerr.Error()))
		}
	}
	return err
}

// Fire runs probe once: check leadership and the rate limit, submit, and
// wait for the outcome. The result goes to the reporter and is returned.
func (s *Scheduler) Fire(ctx context.Context, p Probe) Result {
	res := Result{Probe: p.Name, Started: s.now()}
	logger := s.logger.With(slog.String("probe", p.Name))

	if s.leader != nil {
		ok, err := s.leader.Acquire(ctx)
		if err != nil {
			logger.Error("leader election", slog.String("error", err.Error()))
		}
		if !ok {
			res.Skipped = "not leader"
			logger.Debug("skipping probe, another instance is leader")
			return s.done(res)
		}
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, "probe:"+p.Name)
		if err != nil {
			// Fail open; the limiter only guards against floods.
			logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
			ok = true
		}
		if !ok {
			res.Skipped = "rate limited"
			logger.Warn("skipping probe, rate limit reached")
			return s.done(res)
		}
	}

	task := &domain.Task{
		ID:      uuid.New().String(),
		TestID:  p.TestID,
		Type:    p.Type,
		Version: domain.Version(p.Version),
		Data:    p.Data,
	}
	res.TaskID = task.ID
	runID := uuid.New().String()
	s.tracker.Track(runID, task.ID)
	defer s.tracker.Done(runID)

	fut, err := s.client.Submit(ctx, task, nil)
	if err != nil {
		res.Err = err
		return s.done(res)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = s.timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res.Task, res.Err = fut.Wait(waitCtx)
	if res.Err != nil && waitCtx.Err() != nil {
		s.client.Abort(task.ID)
		res.Err = fmt.Errorf("no outcome for task %s: %w", task.ID, res.Err)
	}
	return s.done(res)
}

func (s *Scheduler) done(res Result) Result {
	res.Duration = s.now().Sub(res.Started)
	attrs := []any{
		slog.String("probe", res.Probe),
		slog.Duration("duration", res.Duration),
	}
	if res.TaskID != "" {
		attrs = append(attrs, slog.String("task_id", res.TaskID))
	}
	switch {
	case res.Skipped != "":
		attrs = append(attrs, slog.String("reason", res.Skipped))
		s.logger.Debug("probe skipped", attrs...)
	case res.Succeeded():
		s.logger.Info("probe succeeded", attrs...)
	case res.Err != nil:
		s.logger.Error("probe failed", append(attrs, slog.String("error", res.Err.Error()))...)
	default:
		s.logger.Warn("probe failed", append(attrs, slog.String("task_error", res.Task.Error))...)
	}
	s.report(res)
	return res
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "error", err.Error())...)
}
