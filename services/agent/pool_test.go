package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	release := make(chan struct{})
	var running, peak atomic.Int32

	for i := 0; i < 5; i++ {
		require.NoError(t, p.Submit(context.Background(), func(context.Context) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			running.Add(-1)
		}))
	}

	assert.Equal(t, 5, p.Active(), "queued work counts as active")
	assert.Equal(t, 0, p.Available())

	close(release)
	require.NoError(t, p.Wait(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 2, p.Available())
}

func TestPool_CloseRejectsNewWork(t *testing.T) {
	p := NewPool(1)
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		wg.Done()
	}))

	p.Close()
	assert.ErrorIs(t, p.Submit(context.Background(), func(context.Context) {}), ErrPoolClosed)
	assert.Equal(t, 0, p.Available())

	wg.Wait()
	require.NoError(t, p.Wait(context.Background()), "accepted work still finishes after Close")
}

func TestPool_WaitHonoursContext(t *testing.T) {
	p := NewPool(1)
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.DeadlineExceeded)
}

func TestPool_QueuedWorkSkippedWhenContextEnds(t *testing.T) {
	p := NewPool(1)
	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	require.NoError(t, p.Submit(ctx, func(context.Context) { ran.Store(true) }))
	cancel()
	close(release)

	require.NoError(t, p.Wait(context.Background()))
	assert.False(t, ran.Load())
}

func TestNewPool_MinimumSize(t *testing.T) {
	assert.Equal(t, 1, NewPool(0).Size())
}
