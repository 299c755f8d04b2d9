package events

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedisPubSub struct {
	messages   chan *redis.Message
	closeCalls int32
}

func (p *fakeRedisPubSub) Channel(...redis.ChannelOption) <-chan *redis.Message { return p.messages }

func (p *fakeRedisPubSub) Close() error {
	if atomic.CompareAndSwapInt32(&p.closeCalls, 0, 1) {
		close(p.messages)
	}
	return nil
}

type fakeRedisClient struct {
	pubSub    *fakeRedisPubSub
	published []string
}

func (c *fakeRedisClient) Publish(_ context.Context, channel string, _ any) *redis.IntCmd {
	c.published = append(c.published, channel)
	return redis.NewIntResult(1, nil)
}

func (c *fakeRedisClient) Subscribe(context.Context, ...string) redisPubSub { return c.pubSub }
func (c *fakeRedisClient) Close() error                                     { return nil }

func TestRedisBus_SubscribeDeliversAndUnsubscribes(t *testing.T) {
	ps := &fakeRedisPubSub{messages: make(chan *redis.Message, 2)}
	client := &fakeRedisClient{pubSub: ps}
	bus := &RedisBus{client: client}

	out, unsubscribe, err := bus.Subscribe(context.Background(), "slamon.agent.events")
	require.NoError(t, err)

	raw, _ := json.Marshal(Event{Type: TypeTaskCompleted, Source: "a1"})
	ps.messages <- &redis.Message{Payload: "not json"}
	ps.messages <- &redis.Message{Payload: string(raw)}

	select {
	case ev := <-out:
		assert.Equal(t, TypeTaskCompleted, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	unsubscribe()
	unsubscribe()
	for range out {
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&ps.closeCalls))

	require.NoError(t, bus.Publish(context.Background(), "slamon.agent.events", Event{Type: TypeTaskStarted}))
	assert.Equal(t, []string{"slamon.agent.events"}, client.published)
}

type fakeNATSSub struct{ unsubscribed int32 }

func (s *fakeNATSSub) Unsubscribe() error {
	atomic.AddInt32(&s.unsubscribed, 1)
	return nil
}

type fakeNATSConn struct {
	mu      sync.Mutex
	handler nats.MsgHandler
	sub     *fakeNATSSub
}

func (c *fakeNATSConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (c *fakeNATSConn) Subscribe(_ string, h nats.MsgHandler) (natsSubscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return c.sub, nil
}

func (c *fakeNATSConn) Close() {}

func TestNATSBus_RoundTrip(t *testing.T) {
	conn := &fakeNATSConn{sub: &fakeNATSSub{}}
	bus := &NATSBus{conn: conn}

	ctx, cancel := context.WithCancel(context.Background())
	out, _, err := bus.Subscribe(ctx, "s")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "s", Event{Type: TypeTemporaryError, Message: "503"}))
	ev := <-out
	assert.Equal(t, "503", ev.Message)

	cancel()
	for range out {
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&conn.sub.unsubscribed))

	// Publishing after the subscription ended must not panic.
	assert.NoError(t, bus.Publish(context.Background(), "s", Event{Type: TypeTaskStarted}))
}
