package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for timestamps this side of
// the protocol generates (agent_time, synthesized task_failed).
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string { return t.Format(TimestampLayout) }

// ParseTimestamp parses an ISO-8601 timestamp carrying a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Version is a handler version ordinal. It always encodes as a JSON integer.
// Decoding tolerates the representations seen from older peers: decimal
// numbers (truncated toward zero) and quoted integers.
type Version int

// UnmarshalJSON implements json.Unmarshaler.
func (v *Version) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("task_version: %w", err)
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("task_version %q is not a number", string(b))
	}
	if f < 0 || math.IsInf(f, 0) || math.IsNaN(f) || f > math.MaxInt32 {
		return fmt.Errorf("task_version %q out of range", string(b))
	}
	*v = Version(math.Trunc(f))
	return nil
}

// Task is the unit of work exchanged with the broker. At most one of Result
// and Error is set once the task is terminal.
type Task struct {
	ID        string         `json:"task_id"`
	TestID    string         `json:"test_id,omitempty"`
	Type      string         `json:"task_type"`
	Version   Version        `json:"task_version"`
	Data      map[string]any `json:"task_data,omitempty"`
	Result    map[string]any `json:"task_result,omitempty"`
	Error     string         `json:"task_error,omitempty"`
	Completed string         `json:"task_completed,omitempty"`
	Failed    string         `json:"task_failed,omitempty"`
}

// IsTerminal reports whether the task carries an outcome.
func (t *Task) IsTerminal() bool {
	return t.Completed != "" || t.Failed != "" || t.Result != nil || t.Error != ""
}

// Succeeded reports whether the task finished with a result and no error.
func (t *Task) Succeeded() bool {
	return t.Result != nil && t.Error == "" && t.Failed == ""
}

// Fail records err as the task's terminal outcome, stamped at now.
func (t *Task) Fail(msg string, now time.Time) {
	t.Result = nil
	t.Error = msg
	t.Failed = FormatTimestamp(now.UTC())
}

// Complete records result as the task's terminal outcome, stamped at now.
func (t *Task) Complete(result map[string]any, now time.Time) {
	if result == nil {
		result = map[string]any{}
	}
	t.Error = ""
	t.Result = result
	t.Completed = FormatTimestamp(now.UTC())
}

// Status labels an execution outcome.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
)

// TaskExecution records one execution of a task by an agent.
type TaskExecution struct {
	ID           string        `json:"id"`
	TaskID       string        `json:"task_id"`
	TaskType     string        `json:"task_type"`
	TaskVersion  int           `json:"task_version"`
	AgentID      string        `json:"agent_id"`
	Status       Status        `json:"status"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
	ResultPosted bool          `json:"result_posted"`
	ExecutedAt   time.Time     `json:"executed_at"`
}
