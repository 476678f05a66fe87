package todoist

import (
	"context"
	"net/http"
	"net/url"
)

// ListTasks returns all active tasks of the account.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns one task by id.
func (c *Client) GetTask(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask creates a task and returns the remote snapshot.
func (c *Client) CreateTask(ctx context.Context, args CreateTaskArgs) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks", args, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies the non-nil fields of args to a task.
func (c *Client) UpdateTask(ctx context.Context, id string, args UpdateTaskArgs) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id), args, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// CloseTask marks a task completed.
func (c *Client) CloseTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/close", nil, nil)
}

// ReopenTask marks a completed task active again.
func (c *Client) ReopenTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/reopen", nil, nil)
}
