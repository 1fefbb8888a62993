package client

import (
	"context"
	"net/http"
)

// TaskFilter narrows a task listing
type TaskFilter struct {
	Status   string
	TaskType string
	Page
}

// ListTasks lists tasks newest first
func (c *Client) ListTasks(ctx context.Context, filter TaskFilter) ([]TaskListItem, error) {
	q := filter.Page.values()
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.TaskType != "" {
		q.Set("task_type", filter.TaskType)
	}
	var out []TaskListItem
	err := c.do(ctx, http.MethodGet, "/api/tasks", q, nil, &out)
	return out, err
}

// CreateTask creates a task; it starts at once unless AutoStart is false
func (c *Client) CreateTask(ctx context.Context, in TaskInput) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTask fetches a task with its results
func (c *Client) GetTask(ctx context.Context, id uint) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodGet, pathf("/api/tasks/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask renames or re-describes a task
func (c *Client) UpdateTask(ctx context.Context, id uint, name, description *string) (*Task, error) {
	body := map[string]*string{}
	if name != nil {
		body["name"] = name
	}
	if description != nil {
		body["description"] = description
	}
	var out Task
	if err := c.do(ctx, http.MethodPut, pathf("/api/tasks/%d", id), nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelTask cancels a pending task
func (c *Client) CancelTask(ctx context.Context, id uint) (*Task, error) {
	var out Task
	if err := c.do(ctx, http.MethodPost, pathf("/api/tasks/%d/cancel", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TaskLogs lists the per-device log lines of a task
func (c *Client) TaskLogs(ctx context.Context, id uint, page Page) ([]TaskLog, error) {
	var out []TaskLog
	err := c.do(ctx, http.MethodGet, pathf("/api/tasks/%d/logs", id), page.values(), nil, &out)
	return out, err
}

// TaskSummary returns aggregate task statistics
func (c *Client) TaskSummary(ctx context.Context) (*TaskSummary, error) {
	var out TaskSummary
	if err := c.do(ctx, http.MethodGet, "/api/tasks/stats/summary", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
