package agent

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("pool closed")

// Pool runs tasks on at most size goroutines at once. Work submitted beyond
// capacity queues rather than being rejected; Active counts it from the
// moment it is accepted so the loop never over-requests.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	mu     sync.Mutex
	active int
	closed bool
	wg     sync.WaitGroup
}

// NewPool creates a Pool of the given size (minimum 1).
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the pool's capacity.
func (p *Pool) Size() int { return p.size }

// Active returns the number of accepted, unfinished tasks.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Available returns how many more tasks fit without queueing, never negative.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	if n := p.size - p.active; n > 0 {
		return n
	}
	return 0
}

// Submit accepts fn for execution. fn receives ctx; if ctx ends while fn is
// still queued, fn is skipped.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.active++
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.done()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		fn(ctx)
	}()
	return nil
}

func (p *Pool) done() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	p.wg.Done()
}

// Close stops accepting work. Accepted tasks still run.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Wait blocks until every accepted task has finished or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
