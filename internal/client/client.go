// Package client is a typed HTTP client for the taskd API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tutu-network/taskd/internal/domain"
)

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("taskd: HTTP %d: %s", e.Code, e.Body)
}

// Client talks to a running taskd server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL (e.g. http://127.0.0.1:3000).
// A nil httpClient uses a client with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Submit creates a task. taskType is any JSON value; nil is sent as null.
func (c *Client) Submit(ctx context.Context, taskType json.RawMessage) (domain.Task, error) {
	if taskType == nil {
		taskType = domain.JSONNull
	}
	body := map[string]json.RawMessage{"type": taskType}
	var task domain.Task
	err := c.do(ctx, http.MethodPost, "/tasks", body, http.StatusCreated, &task)
	return task, err
}

// List returns every task in creation order.
func (c *Client) List(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := c.do(ctx, http.MethodGet, "/tasks", nil, http.StatusOK, &tasks)
	return tasks, err
}

// Get returns a single task.
func (c *Client) Get(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	var task domain.Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+id.String(), nil, http.StatusOK, &task)
	return task, err
}

// Complete reports a task's result. A nil result is sent as JSON null.
func (c *Client) Complete(ctx context.Context, id domain.TaskID, result json.RawMessage) (domain.Task, error) {
	if result == nil {
		result = domain.JSONNull
	}
	body := map[string]json.RawMessage{"result": result}
	var task domain.Task
	err := c.do(ctx, http.MethodPut, "/tasks/"+id.String(), body, http.StatusOK, &task)
	return task, err
}

func (c *Client) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(path, "/tasks/") {
			return fmt.Errorf("%s: %w", path, domain.ErrTaskNotFound)
		}
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
