package submitter

import "sync"

// Aborter stops tracking a task by id. *Client implements it.
type Aborter interface {
	Abort(taskID string) bool
}

// ItemTracker maps a host's own handles (workflow item ids, cron run ids)
// to task ids, so the host can abort by the handle it already has.
type ItemTracker[K comparable] struct {
	client Aborter

	mu    sync.Mutex
	items map[K]string
}

// NewItemTracker creates a tracker that aborts through client.
func NewItemTracker[K comparable](client Aborter) *ItemTracker[K] {
	return &ItemTracker[K]{client: client, items: make(map[K]string)}
}

// Track associates handle with taskID.
func (t *ItemTracker[K]) Track(handle K, taskID string) {
	t.mu.Lock()
	t.items[handle] = taskID
	t.mu.Unlock()
}

// Done forgets handle once its task has an outcome.
func (t *ItemTracker[K]) Done(handle K) {
	t.mu.Lock()
	delete(t.items, handle)
	t.mu.Unlock()
}

// Abort aborts the task tracked under handle and forgets it. It reports
// whether a pending task was aborted.
func (t *ItemTracker[K]) Abort(handle K) bool {
	t.mu.Lock()
	taskID, ok := t.items[handle]
	delete(t.items, handle)
	t.mu.Unlock()
	if !ok {
		return false
	}
	return t.client.Abort(taskID)
}

// AbortAll aborts every tracked task and returns how many were pending.
func (t *ItemTracker[K]) AbortAll() int {
	t.mu.Lock()
	items := t.items
	t.items = make(map[K]string)
	t.mu.Unlock()

	n := 0
	for _, taskID := range items {
		if t.client.Abort(taskID) {
			n++
		}
	}
	return n
}

// Len returns the number of tracked handles.
func (t *ItemTracker[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
