package domain

import (
	"errors"
	"fmt"
)

// TemporaryError marks a retryable failure talking to the broker: transport
// errors, 5xx responses, unreadable bodies.
type TemporaryError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TemporaryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: broker responded with server error status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TemporaryError) Unwrap() error { return e.Err }

// FatalError marks a non-retryable failure: 4xx responses or a response the
// protocol cannot interpret.
type FatalError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: broker responded with client error status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTemporary reports whether err is, or wraps, a *TemporaryError.
func IsTemporary(err error) bool {
	var t *TemporaryError
	return errors.As(err, &t)
}

// IsFatal reports whether err is, or wraps, a *FatalError.
func IsFatal(err error) bool {
	var f *FatalError
	return errors.As(err, &f)
}

// NoHandlerError is returned when no handler matches a task's type and version.
type NoHandlerError struct {
	TaskType string
	Version  int
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for task type %q version %d", e.TaskType, e.Version)
}

// TaskNotFoundError is returned when a task ID is not pending.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// AbortedError is returned to waiters of a task that was aborted locally.
type AbortedError struct {
	TaskID string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("task %s aborted", e.TaskID)
}
