package submitter

import (
	"context"
	"sync"

	"github.com/SLAMon/SLAMon/internal/domain"
)

// Future holds the single outcome of a submitted task. The first resolution
// wins; later ones are ignored, which is what keeps callbacks from firing
// twice.
type Future struct {
	taskID string
	once   sync.Once
	done   chan struct{}
	task   *domain.Task
	err    error
}

// NewFuture returns an unresolved Future. Clients create their own; this is
// for hosts and tests that stand in for a Client.
func NewFuture(taskID string) *Future {
	return &Future{taskID: taskID, done: make(chan struct{})}
}

// TaskID returns the id of the task this future tracks.
func (f *Future) TaskID() string { return f.taskID }

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Resolve stores the outcome and reports whether this call set it.
func (f *Future) Resolve(task *domain.Task, err error) bool {
	won := false
	f.once.Do(func() {
		f.task, f.err = task, err
		won = true
		close(f.done)
	})
	return won
}

// Wait blocks until the task has an outcome or ctx ends. A delivered outcome
// returns the terminal task and a nil error whether the task succeeded or
// failed; check Task.Succeeded. Aborted tasks return *domain.AbortedError.
func (f *Future) Wait(ctx context.Context) (*domain.Task, error) {
	select {
	case <-f.done:
		return f.task, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
