package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion tags every published Event.
const SchemaVersion = "v1"

// Type names an Event.
type Type string

const (
	TypeConnectionState Type = "connection_state"
	TypeFatalError      Type = "fatal_error"
	TypeTemporaryError  Type = "temporary_error"
	TypeTaskStarted     Type = "task_started"
	TypeTaskCompleted   Type = "task_completed"
	TypeTaskError       Type = "task_error"
	TypePollScheduled   Type = "poll_scheduled"
)

// Event is the bus representation of a Listener call.
type Event struct {
	SchemaVersion string     `json:"schema_version"`
	Type          Type       `json:"type"`
	Source        string     `json:"source"`
	Timestamp     time.Time  `json:"timestamp"`
	State         string     `json:"state,omitempty"`
	Message       string     `json:"message,omitempty"`
	NextPoll      *time.Time `json:"next_poll,omitempty"`
}

// ParseEvent decodes an Event, rejecting payloads without a type.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	if ev.SchemaVersion == "" {
		ev.SchemaVersion = SchemaVersion
	}
	return ev, nil
}

// Deliver replays ev onto l. Unknown types are ignored.
func Deliver(ev Event, l Listener) {
	switch ev.Type {
	case TypeConnectionState:
		if s, ok := ParseState(ev.State); ok {
			l.ConnectionStateChanged(s)
		}
	case TypeFatalError:
		l.FatalError(ev.Message)
	case TypeTemporaryError:
		l.TemporaryError(ev.Message)
	case TypeTaskStarted:
		l.TaskStarted()
	case TypeTaskCompleted:
		l.TaskCompleted()
	case TypeTaskError:
		l.TaskError(ev.Message)
	case TypePollScheduled:
		if ev.NextPoll != nil {
			l.PollScheduled(*ev.NextPoll)
		}
	}
}
