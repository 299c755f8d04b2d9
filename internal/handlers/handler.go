package handlers

import (
	"context"
	"sync"

	"github.com/SLAMon/SLAMon/internal/domain"
)

// Handler executes tasks of one type at one version.
type Handler interface {
	Name() string
	Version() int
	Execute(ctx context.Context, data map[string]any) (map[string]any, error)
}

// Registry maps task types to their handlers. Lookups run on every task, so
// they share the read lock; registration is rare.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a Registry holding hs.
func NewRegistry(hs ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	for _, h := range hs {
		r.Register(h)
	}
	return r
}

// Register adds a handler, replacing any handler of the same name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Name()] = h
}

// Lookup returns the handler registered for name at exactly version.
// Returns NoHandlerError otherwise.
func (r *Registry) Lookup(name string, version int) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok || h.Version() != version {
		return nil, &domain.NoHandlerError{TaskType: name, Version: version}
	}
	return h, nil
}

// Capabilities returns a snapshot of name -> version.
func (r *Registry) Capabilities() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make(map[string]int, len(r.handlers))
	for name, h := range r.handlers {
		caps[name] = h.Version()
	}
	return caps
}

// Func adapts a function to Handler.
type Func struct {
	TaskType    string
	TaskVersion int
	Fn          func(ctx context.Context, data map[string]any) (map[string]any, error)
}

func (f Func) Name() string { return f.TaskType }
func (f Func) Version() int { return f.TaskVersion }

func (f Func) Execute(ctx context.Context, data map[string]any) (map[string]any, error) {
	return f.Fn(ctx, data)
}
