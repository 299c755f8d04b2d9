package broker

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/SLAMon/SLAMon/internal/domain"
)

type submitBody struct {
	ID      string         `json:"task_id"`
	TestID  string         `json:"test_id,omitempty"`
	Type    string         `json:"task_type"`
	Version domain.Version `json:"task_version"`
	Data    map[string]any `json:"task_data"`
}

// SubmitTask posts a new task to the broker.
func (c *Client) SubmitTask(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return &domain.FatalError{Op: "submit task", Err: errors.New("task has no id")}
	}
	data := task.Data
	if data == nil {
		data = map[string]any{}
	}
	body := submitBody{ID: task.ID, TestID: task.TestID, Type: task.Type, Version: task.Version, Data: data}
	return c.do(ctx, "submit task", http.MethodPost, "task", body, nil)
}

// FetchTask reads the broker's current view of a task.
func (c *Client) FetchTask(ctx context.Context, taskID string) (*domain.Task, error) {
	var out domain.Task
	if err := c.do(ctx, "fetch task", http.MethodGet, "task/"+url.PathEscape(taskID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
