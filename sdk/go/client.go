package tasktimersdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Tasktimer HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:7788/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Tag represents the API tag model.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Task represents the API task model (partial).
type Task struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	TotalSeconds     int64  `json:"total_seconds"`
	TimeLimitSeconds *int64 `json:"time_limit_seconds,omitempty"`
	Status           string `json:"status"`
	Category         string `json:"category"`
	IsRunning        bool   `json:"is_running"`
	IsArchived       bool   `json:"is_archived"`
	Tags             []Tag  `json:"tags"`
}

// Timer is a task snapshot with its live value.
type Timer struct {
	TaskID           int64  `json:"task_id"`
	TaskName         string `json:"task_name"`
	Running          bool   `json:"running"`
	BaseSeconds      int64  `json:"base_seconds"`
	DisplaySeconds   int64  `json:"display_seconds"`
	TimeLimitSeconds *int64 `json:"time_limit_seconds,omitempty"`
	Category         string `json:"category"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	Payload    string `json:"payload"`
}

// FloatMessage is one message of the floating timer stream.
type FloatMessage struct {
	Version    int    `json:"v"`
	Kind       string `json:"kind"`
	Generation string `json:"generation"`
	Publish    *struct {
		TaskID   int64  `json:"taskId"`
		TaskName string `json:"taskName"`
		Seconds  int64  `json:"seconds"`
	} `json:"publish,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Code extracts error.code from the response envelope.
func (e *APIError) Code() string {
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &env) != nil {
		return ""
	}
	return env.Error.Code
}

// CreateTask creates a task in the normal category.
func (c *Client) CreateTask(ctx context.Context, name string, tagNames ...string) (Task, error) {
	body := map[string]any{"name": name}
	if len(tagNames) > 0 {
		body["tag_names"] = tagNames
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", body, &resp)
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "tasks", nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id int64) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%d", id), nil, &resp)
	return resp, err
}

// SetTags replaces the task's tags; an empty ids clears them.
func (c *Client) SetTags(ctx context.Context, id int64, ids []int64) (Task, error) {
	if ids == nil {
		ids = []int64{}
	}
	var resp Task
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("tasks/%d", id), map[string]any{"tag_ids": ids}, &resp)
	return resp, err
}

func (c *Client) Start(ctx context.Context, id int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/start", id), nil)
}

func (c *Client) Stop(ctx context.Context, id int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/stop", id), nil)
}

func (c *Client) Reset(ctx context.Context, id int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/reset", id), nil)
}

// AddTime records seconds as a closed session.
func (c *Client) AddTime(ctx context.Context, id, seconds int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/manual", id), map[string]any{"seconds": seconds})
}

func (c *Client) SetTotal(ctx context.Context, id, seconds int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPut, fmt.Sprintf("tasks/%d/total", id), map[string]any{"seconds": seconds})
}

// Active returns the running timer; TaskID is 0 when idle.
func (c *Client) Active(ctx context.Context) (Timer, error) {
	return c.timerCall(ctx, http.MethodGet, "timer", nil)
}

func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var resp []Tag
	err := c.do(ctx, http.MethodGet, "tags", nil, &resp)
	return resp, err
}

// Events returns recent events, newest first.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint += "?" + url.Values{"limit": {fmt.Sprint(limit)}}.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// FloatStop stops the task shown by a floating timer of the given generation.
func (c *Client) FloatStop(ctx context.Context, generation string, taskID int64) (Timer, error) {
	return c.timerCall(ctx, http.MethodPost, "float/stop", map[string]any{
		"generation": generation,
		"task_id":    taskID,
	})
}

// FloatEvents streams floating timer messages until ctx is done or the
// server ends the stream. The returned channel is closed on exit.
func (c *Client) FloatEvents(ctx context.Context) (<-chan FloatMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("float/events"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	// streaming responses must not inherit the request timeout
	client := &http.Client{}
	if c.HTTPClient != nil {
		client.Transport = c.HTTPClient.Transport
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	out := make(chan FloatMessage)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var m FloatMessage
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &m); err != nil {
				continue
			}
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) timerCall(ctx context.Context, method, endpoint string, body any) (Timer, error) {
	var resp Timer
	err := c.do(ctx, method, endpoint, body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}

func (c *Client) url(endpoint string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
