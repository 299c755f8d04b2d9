package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SLAMon/SLAMon/internal/domain"
)

// Location describes where an agent runs. Sent as agent_location when set.
type Location struct {
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// TasksRequest describes the agent asking for work.
type TasksRequest struct {
	AgentID      string
	AgentName    string
	Capabilities map[string]int
	MaxTasks     int
	Location     *Location
}

// TasksResponse is the broker's answer to a task request.
type TasksResponse struct {
	// ReturnTime is when the broker wants the next request.
	ReturnTime time.Time
	Tasks      []*domain.Task
}

type capability struct {
	Version int `json:"version"`
}

type tasksRequestBody struct {
	Protocol     int                   `json:"protocol"`
	AgentID      string                `json:"agent_id"`
	AgentName    string                `json:"agent_name"`
	AgentTime    string                `json:"agent_time"`
	Capabilities map[string]capability `json:"agent_capabilities"`
	MaxTasks     int                   `json:"max_tasks"`
	Location     *Location             `json:"agent_location,omitempty"`
}

type tasksResponseBody struct {
	ReturnTime *string        `json:"return_time"`
	Tasks      []*domain.Task `json:"tasks"`
}

// A result carries exactly one of task_data and task_error; task_data is
// sent even when empty.
type resultDataBody struct {
	Protocol int            `json:"protocol"`
	TaskID   string         `json:"task_id"`
	Data     map[string]any `json:"task_data"`
}

type resultErrorBody struct {
	Protocol int    `json:"protocol"`
	TaskID   string `json:"task_id"`
	Error    string `json:"task_error"`
}

// RequestTasks asks the broker for up to req.MaxTasks tasks.
func (c *Client) RequestTasks(ctx context.Context, req TasksRequest) (TasksResponse, error) {
	const op = "request tasks"

	caps := make(map[string]capability, len(req.Capabilities))
	for name, v := range req.Capabilities {
		caps[name] = capability{Version: v}
	}
	maxTasks := req.MaxTasks
	if maxTasks < 0 {
		maxTasks = 0
	}
	body := tasksRequestBody{
		Protocol:     ProtocolVersion,
		AgentID:      req.AgentID,
		AgentName:    req.AgentName,
		AgentTime:    domain.FormatTimestamp(c.now()),
		Capabilities: caps,
		MaxTasks:     maxTasks,
		Location:     req.Location,
	}

	var out tasksResponseBody
	if err := c.do(ctx, op, http.MethodPost, "tasks/", body, &out); err != nil {
		return TasksResponse{}, err
	}
	if out.ReturnTime == nil {
		return TasksResponse{}, &domain.FatalError{Op: op, Err: errors.New("response is missing return_time")}
	}
	rt, err := domain.ParseTimestamp(*out.ReturnTime)
	if err != nil {
		return TasksResponse{}, &domain.FatalError{Op: op, Err: err}
	}

	tasks := out.Tasks[:0]
	for _, t := range out.Tasks {
		if t != nil {
			tasks = append(tasks, t)
		}
	}
	return TasksResponse{ReturnTime: rt, Tasks: tasks}, nil
}

// PostResult reports a task's outcome. A task with neither result nor error
// is reported as an empty result.
func (c *Client) PostResult(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return &domain.FatalError{Op: "post result", Err: fmt.Errorf("task has no id")}
	}
	var body any
	if task.Result == nil && task.Error != "" {
		body = resultErrorBody{Protocol: ProtocolVersion, TaskID: task.ID, Error: task.Error}
	} else {
		data := task.Result
		if data == nil {
			data = map[string]any{}
		}
		body = resultDataBody{Protocol: ProtocolVersion, TaskID: task.ID, Data: data}
	}
	return c.do(ctx, "post result", http.MethodPost, "tasks/response", body, nil)
}
