package app

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/config"
	"tasktimer/internal/engine"
	"tasktimer/internal/surface"
)

func openApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := Open(context.Background(), t.TempDir(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestResolveConfigOverlay(t *testing.T) {
	v := viper.New()
	v.Set("timer.reconcile_interval", "1s")
	cfg, err := ResolveConfig(t.TempDir(), v)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Timer.ReconcileInterval)
}

func TestOpenWiresComponents(t *testing.T) {
	a := openApp(t, nil)
	assert.NotNil(t, a.Projection)
	assert.NotNil(t, a.Surface)
	assert.NotNil(t, a.Watcher)
	assert.Nil(t, a.Pusher)

	snap, err := a.Active(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.Running)
}

func TestActiveSurvivesCallerCancel(t *testing.T) {
	a := openApp(t, nil)
	task, err := a.Engine.CreateTask(context.Background(), engine.TaskCreateOptions{Name: "Shared"})
	require.NoError(t, err)
	_, err = a.Engine.Start(context.Background(), task.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := a.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, task.ID, snap.TaskID)
	assert.True(t, snap.Running)
}

func TestRunFlowsEngineToSurface(t *testing.T) {
	a := openApp(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	assert.False(t, a.Surface.Visible())
	secondary, unsub := a.Surface.Attach()
	defer unsub()
	assert.True(t, a.Surface.Visible())

	task, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{Name: "Flow"})
	require.NoError(t, err)
	_, err = a.Engine.Start(ctx, task.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cur := a.Projection.Current()
		return cur.TaskID == task.ID && cur.Running
	}, 2*time.Second, 10*time.Millisecond)

	var got surface.Message
	require.Eventually(t, func() bool {
		select {
		case got = <-secondary:
			return got.Kind == surface.KindPublish
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, task.ID, got.Publish.TaskID)

	_, err = a.Surface.StopFromSecondary(ctx, task.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !a.Projection.Current().Running }, 2*time.Second, 10*time.Millisecond)
	unsub()
	assert.False(t, a.Surface.Visible(), "hidden once the last float detaches")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
