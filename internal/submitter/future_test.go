package submitter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLAMon/SLAMon/internal/domain"
)

func TestFuture_FirstResolutionWins(t *testing.T) {
	f := NewFuture("t1")

	var wg sync.WaitGroup
	wins := make(chan int, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(&domain.Task{ID: "t1", Error: string(rune('a' + i))}, nil) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for w := range wins {
		winners = append(winners, w)
	}
	require.Len(t, winners, 1)

	task, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(rune('a'+winners[0])), task.Error)
}

func TestFuture_WaitHonoursContext(t *testing.T) {
	f := NewFuture("t1")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "t1", f.TaskID())
}
