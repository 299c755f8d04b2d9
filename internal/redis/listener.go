package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/SLAMon/SLAMon/internal/events"
)

// StateListener mirrors agent connection state into a StateStore. Each poll
// refreshes the key so it only expires once the agent stops polling.
type StateListener struct {
	events.NopListener
	store   StateStore
	agentID string
	logger  *slog.Logger
	timeout time.Duration
	state   func() events.State
}

// NewStateListener creates a StateListener. state reports the agent's
// current state when a poll refreshes the key.
func NewStateListener(store StateStore, agentID string, state func() events.State, logger *slog.Logger) *StateListener {
	return &StateListener{store: store, agentID: agentID, state: state, logger: logger, timeout: time.Second}
}

func (l *StateListener) ConnectionStateChanged(s events.State) {
	l.write(s)
}

func (l *StateListener) PollScheduled(time.Time) {
	l.write(l.state())
}

func (l *StateListener) write(s events.State) {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.store.SetAgentState(ctx, l.agentID, s.String()); err != nil {
		l.logger.Warn("failed to store agent state", slog.String("error", err.Error()))
	}
}
