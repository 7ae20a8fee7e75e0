package tasktimersdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/db"
	"tasktimer/internal/engine"
	"tasktimer/internal/migrate"
	"tasktimer/internal/server"
	"tasktimer/internal/surface"
)

func newClient(t *testing.T) (*Client, *surface.Sync) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn)
	sync := surface.New(surface.Options{Stopper: e, Log: zerolog.Nop()})
	handler, err := server.New(server.Config{Engine: e, Surface: sync, Log: zerolog.Nop()})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		sync.Close()
		srv.Close()
		conn.Close()
	})
	return New(srv.URL + server.DefaultBasePath), sync
}

func TestClientTimerFlow(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	a, err := c.CreateTask(ctx, "A", "client")
	require.NoError(t, err)
	require.Len(t, a.Tags, 1)
	b, err := c.CreateTask(ctx, "B")
	require.NoError(t, err)

	_, err = c.Start(ctx, a.ID)
	require.NoError(t, err)
	active, err := c.Start(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.TaskID)

	got, err := c.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRunning)

	_, err = c.Stop(ctx, b.ID)
	require.NoError(t, err)
	idle, err := c.Active(ctx)
	require.NoError(t, err)
	assert.Zero(t, idle.TaskID)

	timer, err := c.AddTime(ctx, a.ID, 1800)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, timer.BaseSeconds, int64(1800))

	cleared, err := c.SetTags(ctx, a.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, cleared.Tags)
	tags, err := c.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	events, err := c.Events(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestClientAPIError(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.GetTask(context.Background(), 404)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code())
}

func TestClientFloat(t *testing.T) {
	c, sync := newClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	task, err := c.CreateTask(ctx, "Float")
	require.NoError(t, err)
	_, err = c.Start(ctx, task.ID)
	require.NoError(t, err)
	sync.Publish(surface.PublishPayload{TaskID: task.ID, TaskName: task.Name, Seconds: 7})

	stream, err := c.FloatEvents(ctx)
	require.NoError(t, err)
	m, ok := <-stream
	require.True(t, ok)
	require.Equal(t, "publish", m.Kind)
	require.NotNil(t, m.Publish)
	assert.Equal(t, int64(7), m.Publish.Seconds)

	stopped, err := c.FloatStop(ctx, m.Generation, task.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Running)

	_, err = c.FloatStop(ctx, m.Generation, task.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "stale_generation", apiErr.Code())
}
