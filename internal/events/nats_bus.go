package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

type natsSubscription interface {
	Unsubscribe() error
}

type natsConnection interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (natsSubscription, error)
	Close()
}

// NATSBus publishes events on NATS subjects.
type NATSBus struct {
	conn natsConnection
}

// NewNATSBus connects to the NATS server at address.
func NewNATSBus(address string) (*NATSBus, error) {
	if address == "" {
		address = nats.DefaultURL
	}
	conn, err := nats.Connect(address, nats.Name("slamon-agent"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBus{conn: &natsConnAdapter{conn}}, nil
}

func (b *NATSBus) Publish(ctx context.Context, subject string, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.Publish(subject, raw); err != nil {
		return fmt.Errorf("nats publish to %s: %w", subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, subject string) (<-chan Event, func(), error) {
	out := make(chan Event, 32)
	var (
		mu      sync.RWMutex
		stopped bool
		once    sync.Once
		sub     natsSubscription
	)
	unsubscribe := func() {
		once.Do(func() {
			if sub != nil {
				_ = sub.Unsubscribe()
			}
			mu.Lock()
			defer mu.Unlock()
			stopped = true
			close(out)
		})
	}

	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := ParseEvent(msg.Data)
		if err != nil {
			return
		}
		mu.RLock()
		defer mu.RUnlock()
		if stopped {
			return
		}
		select {
		case out <- ev:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("nats subscribe to %s: %w", subject, err)
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			unsubscribe()
		}()
	}
	return out, unsubscribe, nil
}

func (b *NATSBus) Close() error {
	b.conn.Close()
	return nil
}

type natsConnAdapter struct {
	*nats.Conn
}

func (a *natsConnAdapter) Subscribe(subject string, handler nats.MsgHandler) (natsSubscription, error) {
	return a.Conn.Subscribe(subject, handler)
}
