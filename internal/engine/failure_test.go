package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
)

func (env testEnv) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := env.Engine.DB.Exec(query, args...)
	require.NoError(t, err)
}

func (env testEnv) eventTypes(t *testing.T, id int64) []string {
	t.Helper()
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "", "task", id)
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	return types
}

func TestStartAbortsWhenStoppingPreviousFails(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A")
	b := env.task(t, "B")
	before, err := env.Engine.Start(env.Ctx, a.ID)
	require.NoError(t, err)
	env.Clock.Advance(30 * time.Second)
	env.exec(t, `CREATE TRIGGER refuse_close BEFORE UPDATE OF end_time ON time_entries
		BEGIN SELECT RAISE(ABORT, 'session table unavailable'); END`)
	published := len(env.Hub.all())

	_, err = env.Engine.Start(env.Ctx, b.ID)
	var te *engine.TransactionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "stop previous", te.Op)
	assert.False(t, te.Busy())
	assert.NotErrorIs(t, err, engine.ErrConcurrencyInvariant)

	gotA, err := env.Engine.GetTask(env.Ctx, a.ID)
	require.NoError(t, err)
	gotB, err := env.Engine.GetTask(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gotA.IsRunning)
	assert.Zero(t, gotA.TotalSeconds)
	assert.False(t, gotB.IsRunning)
	assert.Equal(t, 1, env.runningCount(t))
	assert.Equal(t, 1, env.openCount(t))

	still, err := env.Engine.Active(env.Ctx)
	require.NoError(t, err)
	assert.True(t, before.SameSession(still))
	assert.Len(t, env.Hub.all(), published)
	assert.Equal(t, []string{"timer.started", "task.created"}, env.eventTypes(t, a.ID))
	assert.Equal(t, []string{"task.created"}, env.eventTypes(t, b.ID))
}

func TestStartRefusesWhenPreviousStaysRunning(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A")
	b := env.task(t, "B")
	_, err := env.Engine.Start(env.Ctx, a.ID)
	require.NoError(t, err)
	env.Clock.Advance(12 * time.Second)
	// the session closes but the flag silently survives
	env.exec(t, `CREATE TRIGGER keep_running BEFORE UPDATE OF is_running ON tasks
		WHEN OLD.is_running = 1 AND NEW.is_running = 0
		BEGIN SELECT RAISE(IGNORE); END`)

	_, err = env.Engine.Start(env.Ctx, b.ID)
	require.ErrorIs(t, err, engine.ErrConcurrencyInvariant)

	entries, err := env.Engine.TimeEntries(env.Ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].EndTime, "closing the previous session is rolled back")
	gotB, err := env.Engine.GetTask(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, gotB.IsRunning)
	assert.Equal(t, 1, env.runningCount(t))
	assert.Equal(t, 1, env.openCount(t))
	assert.Equal(t, []string{"timer.started", "task.created"}, env.eventTypes(t, a.ID))
}

func TestStartMapsRunningIndexViolation(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A")
	b := env.task(t, "B")
	// any new session drags A back to running next to the started task
	env.exec(t, fmt.Sprintf(`CREATE TRIGGER revive AFTER INSERT ON time_entries
		BEGIN UPDATE tasks SET is_running = 1 WHERE id = %d AND NEW.task_id <> %d; END`, a.ID, a.ID))

	_, err := env.Engine.Start(env.Ctx, b.ID)
	require.ErrorIs(t, err, engine.ErrConcurrencyInvariant)

	var te *engine.TransactionError
	assert.False(t, errors.As(err, &te))
	assert.Zero(t, env.runningCount(t))
	assert.Zero(t, env.openCount(t))
	entries, err := env.Engine.TimeEntries(env.Ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, []string{"task.created"}, env.eventTypes(t, b.ID))
}

func TestStartWithCanceledContextChangesNothing(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A")
	b := env.task(t, "B")
	_, err := env.Engine.Start(env.Ctx, a.ID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(env.Ctx)
	cancel()
	_, err = env.Engine.Start(ctx, b.ID)
	var te *engine.TransactionError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, context.Canceled)

	active, err := env.Engine.Active(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.TaskID)
	assert.Equal(t, 1, env.runningCount(t))
	assert.Equal(t, 1, env.openCount(t))
}

func TestConcurrentStartsLeaveOneSession(t *testing.T) {
	env := newTestEnv(t)
	var ids []int64
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, env.task(t, name).ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 3*len(ids))
	for round := 0; round < 3; round++ {
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.Engine.Start(env.Ctx, id)
				errs <- err
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 1, env.runningCount(t))
	assert.Equal(t, 1, env.openCount(t))
	active, err := env.Engine.Active(env.Ctx)
	require.NoError(t, err)
	require.True(t, active.Running)
	entries, err := env.Engine.TimeEntries(env.Ctx, active.TaskID)
	require.NoError(t, err)
	open := 0
	for _, e := range entries {
		if e.Open() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestConcurrentDoubleStartOpensOneSession(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "Click")

	var wg sync.WaitGroup
	snaps := make([]domain.Snapshot, 2)
	for i := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := env.Engine.Start(env.Ctx, task.ID)
			assert.NoError(t, err)
			snaps[i] = s
		}()
	}
	wg.Wait()

	assert.True(t, snaps[0].SameSession(snaps[1]))
	entries, err := env.Engine.TimeEntries(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, 1, env.openCount(t))
}
