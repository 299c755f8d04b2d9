package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Subject returns the bus subject agent events are published on.
func Subject(prefix string) string {
	if prefix == "" {
		prefix = "slamon"
	}
	return prefix + ".agent.events"
}

// BusListener publishes every event to a Bus. Publishing happens on a
// background goroutine so a slow bus never stalls the agent; when the
// buffer is full the event is dropped and logged.
type BusListener struct {
	bus     Bus
	subject string
	source  string
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	queue chan Event
	done  chan struct{}

	// mu orders sends against Close.
	mu     sync.Mutex
	closed bool
}

// NewBusListener starts a BusListener. Call Close to flush and stop it.
func NewBusListener(bus Bus, subject, source string, logger *slog.Logger) *BusListener {
	l := &BusListener{
		bus:     bus,
		subject: subject,
		source:  source,
		timeout: 5 * time.Second,
		logger:  logger.With(slog.String("component", "bus_listener")),
		now:     time.Now,
		queue:   make(chan Event, 256),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *BusListener) run() {
	defer close(l.done)
	for ev := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		if err := l.bus.Publish(ctx, l.subject, ev); err != nil {
			l.logger.Warn("publish event failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (l *BusListener) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
}

func (l *BusListener) emit(ev Event) {
	ev.SchemaVersion = SchemaVersion
	ev.Source = l.source
	ev.Timestamp = l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("event buffer full, dropping event", slog.String("type", string(ev.Type)))
	}
}

func (l *BusListener) ConnectionStateChanged(s State) {
	l.emit(Event{Type: TypeConnectionState, State: s.String()})
}

func (l *BusListener) FatalError(msg string) {
	l.emit(Event{Type: TypeFatalError, Message: msg})
}

func (l *BusListener) TemporaryError(msg string) {
	l.emit(Event{Type: TypeTemporaryError, Message: msg})
}

func (l *BusListener) TaskStarted() {
	l.emit(Event{Type: TypeTaskStarted})
}

func (l *BusListener) TaskCompleted() {
	l.emit(Event{Type: TypeTaskCompleted})
}

func (l *BusListener) TaskError(msg string) {
	l.emit(Event{Type: TypeTaskError, Message: msg})
}

func (l *BusListener) PollScheduled(next time.Time) {
	n := next.UTC()
	l.emit(Event{Type: TypePollScheduled, NextPoll: &n})
}
