package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/db"
	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
	"tasktimer/internal/migrate"
	"tasktimer/internal/surface"
)

type testServer struct {
	URL     string
	Engine  engine.Engine
	Surface *surface.Sync
	client  *http.Client
}

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn)
	sync := surface.New(surface.Options{Stopper: e, Log: zerolog.Nop()})
	handler, err := New(Config{Engine: e, Surface: sync, Auth: auth, Log: zerolog.Nop()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		sync.Close()
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	})
	return &testServer{
		URL:     "http://" + ln.Addr().String() + DefaultBasePath,
		Engine:  e,
		Surface: sync,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func (s *testServer) createTask(t *testing.T, body map[string]any) domain.Task {
	t.Helper()
	res, data := doJSON(t, s.client, http.MethodPost, s.URL+"/tasks", body, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	return decode[domain.Task](t, data)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"status":"ok","schema_version":1}`, string(data))
	assert.NotEmpty(t, res.Header.Get(requestIDHeader))
}

func TestTaskLifecycle(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	created := srv.createTask(t, map[string]any{
		"name":      "Write report",
		"category":  "priority",
		"tag_names": []string{"Work", "writing"},
	})
	assert.Equal(t, domain.CategoryPriority, created.Category)
	assert.Len(t, created.Tags, 2)

	url := fmt.Sprintf("%s/tasks/%d", srv.URL, created.ID)
	res, data := doJSON(t, srv.client, http.MethodPatch, url, map[string]any{"status": "executing", "tag_ids": []int64{}}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	updated := decode[domain.Task](t, data)
	assert.Equal(t, domain.StatusExecuting, updated.Status)
	assert.Empty(t, updated.Tags)

	res, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/tags", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[[]domain.Tag](t, data), 2, "clearing a task's tags keeps the tags")

	res, _ = doJSON(t, srv.client, http.MethodPost, url+"/archive", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	_, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/tasks", nil, nil)
	assert.Empty(t, decode[[]domain.Task](t, data))
	_, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/tasks?archived=true", nil, nil)
	assert.Len(t, decode[[]domain.Task](t, data), 1)

	res, _ = doJSON(t, srv.client, http.MethodDelete, url, nil, nil)
	require.Equal(t, http.StatusNoContent, res.StatusCode)
	res, data = doJSON(t, srv.client, http.MethodGet, url, nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	env := decode[apiError](t, data)
	assert.Equal(t, "not_found", env.Body.Code)
}

func TestStartSwitchesRunningTask(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	a := srv.createTask(t, map[string]any{"name": "A"})
	b := srv.createTask(t, map[string]any{"name": "B"})

	res, data := doJSON(t, srv.client, http.MethodPost, fmt.Sprintf("%s/tasks/%d/start", srv.URL, a.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.True(t, decode[TimerResponse](t, data).Running)

	res, data = doJSON(t, srv.client, http.MethodPost, fmt.Sprintf("%s/tasks/%d/start", srv.URL, b.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	_, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/timer", nil, nil)
	active := decode[TimerResponse](t, data)
	assert.Equal(t, b.ID, active.TaskID)
	assert.True(t, active.Running)

	_, data = doJSON(t, srv.client, http.MethodGet, fmt.Sprintf("%s/tasks/%d", srv.URL, a.ID), nil, nil)
	assert.False(t, decode[domain.Task](t, data).IsRunning)

	res, data = doJSON(t, srv.client, http.MethodPost, fmt.Sprintf("%s/tasks/%d/stop", srv.URL, b.ID), nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	_, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/timer", nil, nil)
	assert.Equal(t, int64(0), decode[TimerResponse](t, data).TaskID)
}

func TestManualAndTotal(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	task := srv.createTask(t, map[string]any{"name": "Retro"})
	base := fmt.Sprintf("%s/tasks/%d", srv.URL, task.ID)

	res, data := doJSON(t, srv.client, http.MethodPost, base+"/manual", map[string]any{"seconds": 1800}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, int64(1800), decode[TimerResponse](t, data).BaseSeconds)

	res, data = doJSON(t, srv.client, http.MethodPost, base+"/manual", map[string]any{"seconds": -5}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	env := decode[apiError](t, data)
	assert.Equal(t, "bad_request", env.Body.Code)
	assert.Equal(t, "seconds", env.Body.Details["field"])

	res, data = doJSON(t, srv.client, http.MethodPut, base+"/total", map[string]any{"seconds": 60}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Equal(t, int64(60), decode[TimerResponse](t, data).DisplaySeconds)

	_, data = doJSON(t, srv.client, http.MethodGet, base+"/entries", nil, nil)
	assert.Len(t, decode[[]domain.TimeEntry](t, data), 1)

	_, data = doJSON(t, srv.client, http.MethodGet, srv.URL+"/stats/general", nil, nil)
	assert.Equal(t, int64(1), decode[domain.GeneralStats](t, data).TotalTasks)

	_, data = doJSON(t, srv.client, http.MethodGet, fmt.Sprintf("%s/events?entity_kind=task&entity_id=%d", srv.URL, task.ID), nil, nil)
	events := decode[paginatedEvents](t, data)
	require.NotEmpty(t, events.Items)
	assert.Equal(t, "time.set", events.Items[0].Type)
}

func TestCreateTaskValidation(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/tasks", map[string]any{"name": "  "}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "name", decode[apiError](t, data).Body.Details["field"])

	res, _ = doJSON(t, srv.client, http.MethodPost, srv.URL+"/tasks", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, data = doJSON(t, srv.client, http.MethodPatch, srv.URL+"/tasks/1", map[string]any{"tag_ids": nil}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "bad_request", decode[apiError](t, data).Body.Code)
}

func TestFloatStop(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	task := srv.createTask(t, map[string]any{"name": "Float"})
	_, err := srv.Engine.Start(context.Background(), task.ID)
	require.NoError(t, err)

	res, data := doJSON(t, srv.client, http.MethodPost, srv.URL+"/float/stop", FloatStopRequest{Generation: "gone", TaskID: task.ID}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "stale_generation", decode[apiError](t, data).Body.Code)

	gen := srv.Surface.Generation()
	res, data = doJSON(t, srv.client, http.MethodPost, srv.URL+"/float/stop", FloatStopRequest{Generation: gen, TaskID: task.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.False(t, decode[TimerResponse](t, data).Running)
	assert.NotEqual(t, gen, srv.Surface.Generation())
}

func TestFloatEventsStream(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	require.False(t, srv.Surface.Visible())
	// published with no float attached, delivered once one connects
	srv.Surface.Publish(surface.PublishPayload{TaskID: 3, TaskName: "Stream", Seconds: 42})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/float/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		m := decode[surface.Message](t, []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
		assert.Equal(t, surface.KindPublish, m.Kind)
		assert.Equal(t, srv.Surface.Generation(), m.Generation)
		assert.Equal(t, int64(42), m.Publish.Seconds)
		assert.True(t, srv.Surface.Visible())

		cancel()
		res.Body.Close()
		require.Eventually(t, func() bool { return !srv.Surface.Visible() }, 2*time.Second, 10*time.Millisecond)
		return
	}
	t.Fatalf("no event received: %v", scanner.Err())
}

func TestAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "s3cret"})

	res, _ := doJSON(t, srv.client, http.MethodGet, srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/tasks", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decode[apiError](t, data).Body.Code)

	bad, err := IssueToken("other", "me", time.Minute)
	require.NoError(t, err)
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/tasks", nil, map[string]string{"Authorization": "Bearer " + bad})
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := IssueToken("s3cret", "me", time.Minute)
	require.NoError(t, err)
	res, _ = doJSON(t, srv.client, http.MethodGet, srv.URL+"/tasks", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestOpenAPIDocumentIsPublic(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "s3cret"})
	res, data := doJSON(t, srv.client, http.MethodGet, srv.URL+"/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	doc := decode[map[string]any](t, data)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/v1/tasks/{id}/start")
	assert.Contains(t, paths, "/v1/float/events")

	op := func(route string) map[string]any {
		item, ok := paths[route].(map[string]any)
		require.True(t, ok, route)
		get, ok := item["get"].(map[string]any)
		require.True(t, ok, route)
		return get
	}
	assert.NotEmpty(t, op("/v1/tasks")["security"])
	assert.Empty(t, op("/v1/health")["security"])
	assert.Contains(t, doc["components"], "securitySchemes")
}
