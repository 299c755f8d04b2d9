// Package events carries agent lifecycle notifications to observers: log
// output, metrics, and an optional message bus.
package events

import (
	"sync"
	"time"
)

// State is the agent's view of its broker connection.
type State int

const (
	Connecting State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	switch s {
	case "CONNECTING":
		return Connecting, true
	case "CONNECTED":
		return Connected, true
	case "DISCONNECTED":
		return Disconnected, true
	}
	return 0, false
}

// Listener observes agent lifecycle events. Calls come from the agent's loop
// goroutine and from task goroutines concurrently; implementations must be
// safe for concurrent use and must not block for long.
type Listener interface {
	ConnectionStateChanged(state State)
	FatalError(msg string)
	TemporaryError(msg string)
	TaskStarted()
	TaskCompleted()
	TaskError(msg string)
	// PollScheduled reports when the next task request will be made.
	PollScheduled(next time.Time)
}

// NopListener implements Listener with no-ops. Embed it to implement only
// the events you care about.
type NopListener struct{}

func (NopListener) ConnectionStateChanged(State) {}
func (NopListener) FatalError(string)            {}
func (NopListener) TemporaryError(string)        {}
func (NopListener) TaskStarted()                 {}
func (NopListener) TaskCompleted()               {}
func (NopListener) TaskError(string)             {}
func (NopListener) PollScheduled(time.Time)      {}

// Listeners fans events out to a set of listeners. Registration swaps in a
// new slice, so notification never holds a lock while calling out.
type Listeners struct {
	mu      sync.Mutex
	entries []*entry
}

type entry struct{ l Listener }

var _ Listener = (*Listeners)(nil)

// Add registers l and returns a function that unregisters it.
func (ls *Listeners) Add(l Listener) (remove func()) {
	e := &entry{l: l}
	ls.mu.Lock()
	next := make([]*entry, 0, len(ls.entries)+1)
	next = append(next, ls.entries...)
	ls.entries = append(next, e)
	ls.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			ls.mu.Lock()
			defer ls.mu.Unlock()
			next := make([]*entry, 0, len(ls.entries))
			for _, cur := range ls.entries {
				if cur != e {
					next = append(next, cur)
				}
			}
			ls.entries = next
		})
	}
}

// Len returns the number of registered listeners.
func (ls *Listeners) Len() int {
	return len(ls.snapshot())
}

func (ls *Listeners) snapshot() []*entry {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.entries
}

func (ls *Listeners) each(fn func(Listener)) {
	for _, e := range ls.snapshot() {
		fn(e.l)
	}
}

func (ls *Listeners) ConnectionStateChanged(s State) {
	ls.each(func(l Listener) { l.ConnectionStateChanged(s) })
}

func (ls *Listeners) FatalError(msg string) {
	ls.each(func(l Listener) { l.FatalError(msg) })
}

func (ls *Listeners) TemporaryError(msg string) {
	ls.each(func(l Listener) { l.TemporaryError(msg) })
}

func (ls *Listeners) TaskStarted() {
	ls.each(func(l Listener) { l.TaskStarted() })
}

func (ls *Listeners) TaskCompleted() {
	ls.each(func(l Listener) { l.TaskCompleted() })
}

func (ls *Listeners) TaskError(msg string) {
	ls.each(func(l Listener) { l.TaskError(msg) })
}

func (ls *Listeners) PollScheduled(next time.Time) {
	ls.each(func(l Listener) { l.PollScheduled(next) })
}
