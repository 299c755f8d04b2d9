package events

import (
	"context"
	"fmt"
	"sync"
)

// Bus moves Events between processes.
type Bus interface {
	Publish(ctx context.Context, subject string, ev Event) error
	// Subscribe returns a channel of events and a function that stops the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, subject string) (<-chan Event, func(), error)
	Close() error
}

// MemoryBus is an in-process Bus. Slow subscribers miss events.
type MemoryBus struct {
	mu        sync.RWMutex
	channels  map[string][]chan Event
	closed    bool
	closeOnce sync.Once
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{channels: make(map[string][]chan Event)}
}

func (b *MemoryBus) Publish(_ context.Context, subject string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus closed")
	}
	for _, ch := range b.channels[subject] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, subject string) (<-chan Event, func(), error) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, fmt.Errorf("bus closed")
	}
	b.channels[subject] = append(b.channels[subject], ch)
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subscribers := b.channels[subject]
			for i, candidate := range subscribers {
				if candidate == ch {
					b.channels[subject] = append(subscribers[:i:i], subscribers[i+1:]...)
					close(ch)
					return
				}
			}
		})
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsub()
		}()
	}
	return ch, unsub, nil
}

func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for subject, subscribers := range b.channels {
			for _, ch := range subscribers {
				close(ch)
			}
			delete(b.channels, subject)
		}
		b.mu.Unlock()
	})
	return nil
}
