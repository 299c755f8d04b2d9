package events_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SLAMon/SLAMon/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return events.Event{}
	}
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()

	ch, unsub, err := bus.Subscribe(context.Background(), "s")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), "s", events.Event{Type: events.TypeTaskStarted}))
	assert.Equal(t, events.TypeTaskStarted, receive(t, ch).Type)

	unsub()
	_, ok := <-ch
	assert.False(t, ok, "unsubscribe should close the channel")
}

func TestMemoryBus_ClosedRejects(t *testing.T) {
	bus := events.NewMemoryBus()
	ch, _, err := bus.Subscribe(context.Background(), "s")
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, ok := <-ch
	assert.False(t, ok)
	assert.Error(t, bus.Publish(context.Background(), "s", events.Event{}))
	_, _, err = bus.Subscribe(context.Background(), "s")
	assert.Error(t, err)
}

func TestBusListener_PublishesEnvelopes(t *testing.T) {
	bus := events.NewMemoryBus()
	defer bus.Close()
	subject := events.Subject("test")
	assert.Equal(t, "test.agent.events", subject)

	ch, unsub, err := bus.Subscribe(context.Background(), subject)
	require.NoError(t, err)
	defer unsub()

	l := events.NewBusListener(bus, subject, "agent-1", discardLogger())
	next := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	l.ConnectionStateChanged(events.Connected)
	l.PollScheduled(next)
	l.TaskError("no handler")
	l.Close()

	ev := receive(t, ch)
	assert.Equal(t, events.TypeConnectionState, ev.Type)
	assert.Equal(t, "CONNECTED", ev.State)
	assert.Equal(t, "agent-1", ev.Source)
	assert.Equal(t, events.SchemaVersion, ev.SchemaVersion)

	ev = receive(t, ch)
	require.NotNil(t, ev.NextPoll)
	assert.True(t, next.Equal(*ev.NextPoll))

	ev = receive(t, ch)
	assert.Equal(t, events.TypeTaskError, ev.Type)
	assert.Equal(t, "no handler", ev.Message)
}

func TestBusListener_EventsAfterCloseAreDropped(t *testing.T) {
	l := events.NewBusListener(events.NewMemoryBus(), "s", "a", discardLogger())
	l.Close()
	assert.NotPanics(t, func() { l.TaskStarted() })
}

func TestBusListener_EmitRacingClose(t *testing.T) {
	l := events.NewBusListener(events.NewMemoryBus(), "s", "a", discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.TaskCompleted()
			}
		}()
	}
	l.Close()
	wg.Wait()

	assert.NotPanics(t, l.Close)
	assert.NotPanics(t, func() { l.TaskError("late") })
}

func TestNewBus(t *testing.T) {
	bus, err := events.NewBus(events.BusConfig{Kind: "none"}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, bus)

	bus, err = events.NewBus(events.BusConfig{Kind: "memory"}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &events.MemoryBus{}, bus)

	_, err = events.NewBus(events.BusConfig{Kind: "kafka"}, discardLogger())
	assert.Error(t, err)

	_, err = events.NewBus(events.BusConfig{Kind: "carrier-pigeon"}, discardLogger())
	assert.Error(t, err)
}

func TestParseEvent_RejectsUntyped(t *testing.T) {
	_, err := events.ParseEvent([]byte(`{"source":"a"}`))
	assert.Error(t, err)

	ev, err := events.ParseEvent([]byte(`{"type":"task_started"}`))
	require.NoError(t, err)
	assert.Equal(t, events.SchemaVersion, ev.SchemaVersion)
}
