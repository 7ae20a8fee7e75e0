package engine

import (
	"context"
	"errors"

	"tasktimer/internal/domain"
	"tasktimer/internal/events"
	"tasktimer/internal/repo"
)

// Start opens a session on the task. Any other running task is stopped
// first, in the same transaction; if that fails nothing changes. Starting
// a task that already has an open session is a no-op.
func (e Engine) Start(ctx context.Context, id int64) (domain.Snapshot, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, e.fail("begin start", "task", id, err)
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Snapshot{}, e.fail("start", "task", id, err)
	}
	if task.IsRunning {
		open, err := e.Repo.ActiveTimeEntryTx(ctx, tx, id)
		if err == nil {
			e.Log.Debug().Int64("task_id", id).Msg("start ignored, already running")
			return domain.SnapshotOf(task, &open, now), nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Snapshot{}, e.fail("start", "task", id, err)
		}
	}

	running, err := e.Repo.RunningTaskIDsTx(ctx, tx)
	if err != nil {
		return domain.Snapshot{}, e.fail("list running", "task", id, err)
	}
	var stopped []int64
	for _, other := range running {
		entry, err := e.Repo.StopSessionTx(ctx, tx, other, now)
		if err != nil {
			return domain.Snapshot{}, e.fail("stop previous", "task", other, err)
		}
		if other == id {
			// flagged running without a session; the flag is cleared above
			continue
		}
		payload := events.EventPayload{"reason": "switch", "next_task_id": id}
		if entry != nil {
			payload["duration_seconds"] = *entry.DurationSeconds
		}
		if err := e.appendEvent(ctx, tx, events.TimerStopped, other, payload); err != nil {
			return domain.Snapshot{}, e.fail("stop previous", "task", other, err)
		}
		stopped = append(stopped, other)
	}
	left, err := e.Repo.RunningTaskIDsTx(ctx, tx)
	if err != nil {
		return domain.Snapshot{}, e.fail("list running", "task", id, err)
	}
	if len(left) > 0 {
		e.Log.Error().Ints64("running", left).Int64("task_id", id).Msg("refusing start, tasks still running")
		return domain.Snapshot{}, ErrConcurrencyInvariant
	}

	entry, err := e.Repo.StartSessionTx(ctx, tx, id, now)
	if err != nil {
		return domain.Snapshot{}, e.fail("start", "task", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.TimerStarted, id, events.EventPayload{
		"entry_id":      entry.ID,
		"base_seconds":  task.TotalSeconds,
		"stopped_tasks": stopped,
	}); err != nil {
		return domain.Snapshot{}, e.fail("start", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, e.fail("commit start", "task", id, err)
	}

	for _, other := range stopped {
		if _, _, err := e.announce(ctx, other); err != nil {
			e.Log.Warn().Err(err).Int64("task_id", other).Msg("announce stopped task")
		}
	}
	_, snap, err := e.announce(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	e.Log.Info().Int64("task_id", id).Ints64("stopped", stopped).Msg("timer started")
	return snap, nil
}

// Stop closes the task's open session. Stopping a stopped task changes
// nothing and is not an error.
func (e Engine) Stop(ctx context.Context, id int64) (domain.Snapshot, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, e.fail("begin stop", "task", id, err)
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Snapshot{}, e.fail("stop", "task", id, err)
	}
	entry, err := e.Repo.StopSessionTx(ctx, tx, id, now)
	if err != nil {
		return domain.Snapshot{}, e.fail("stop", "task", id, err)
	}
	if entry == nil && !task.IsRunning {
		return domain.SnapshotOf(task, nil, now), nil
	}
	payload := events.EventPayload{}
	if entry != nil {
		payload["entry_id"] = entry.ID
		payload["duration_seconds"] = *entry.DurationSeconds
	}
	if err := e.appendEvent(ctx, tx, events.TimerStopped, id, payload); err != nil {
		return domain.Snapshot{}, e.fail("stop", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, e.fail("commit stop", "task", id, err)
	}
	_, snap, err := e.announce(ctx, id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	e.Log.Info().Int64("task_id", id).Int64("total_seconds", snap.BaseSeconds).Msg("timer stopped")
	return snap, nil
}

// Reset deletes every session of the task and zeroes its total, whether or
// not it is running.
func (e Engine) Reset(ctx context.Context, id int64) (domain.Snapshot, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, e.fail("begin reset", "task", id, err)
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Snapshot{}, e.fail("reset", "task", id, err)
	}
	if err := e.Repo.ResetSessionTx(ctx, tx, id, now); err != nil {
		return domain.Snapshot{}, e.fail("reset", "task", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.TimerReset, id, events.EventPayload{
		"previous_total": task.TotalSeconds,
		"was_running":    task.IsRunning,
	}); err != nil {
		return domain.Snapshot{}, e.fail("reset", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, e.fail("commit reset", "task", id, err)
	}
	_, snap, err := e.announce(ctx, id)
	return snap, err
}

// AddManualEntry records seconds of retroactive time as a closed session.
// Negative input is rejected; zero changes nothing.
func (e Engine) AddManualEntry(ctx context.Context, id, seconds int64) (domain.Snapshot, error) {
	if seconds < 0 {
		return domain.Snapshot{}, ValidationError{Field: "seconds", Reason: "must not be negative"}
	}
	if seconds == 0 {
		return e.Snapshot(ctx, id)
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, e.fail("begin manual entry", "task", id, err)
	}
	defer tx.Rollback()

	entry, err := e.Repo.AddManualEntryTx(ctx, tx, id, seconds, now)
	if err != nil {
		return domain.Snapshot{}, e.fail("manual entry", "task", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.TimeAdded, id, events.EventPayload{
		"entry_id": entry.ID,
		"seconds":  seconds,
	}); err != nil {
		return domain.Snapshot{}, e.fail("manual entry", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, e.fail("commit manual entry", "task", id, err)
	}
	_, snap, err := e.announce(ctx, id)
	return snap, err
}

// SetTotal overwrites the task's accumulated total. Sessions are untouched.
func (e Engine) SetTotal(ctx context.Context, id, seconds int64) (domain.Snapshot, error) {
	if seconds < 0 {
		return domain.Snapshot{}, ValidationError{Field: "seconds", Reason: "must not be negative"}
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, e.fail("begin set total", "task", id, err)
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Snapshot{}, e.fail("set total", "task", id, err)
	}
	if task.TotalSeconds == seconds {
		return e.snapshotTx(ctx, tx, task)
	}
	if err := e.Repo.SetTotalTx(ctx, tx, id, seconds, now); err != nil {
		return domain.Snapshot{}, e.fail("set total", "task", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.TimeSet, id, events.EventPayload{
		"previous_total": task.TotalSeconds,
		"total_seconds":  seconds,
	}); err != nil {
		return domain.Snapshot{}, e.fail("set total", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Snapshot{}, e.fail("commit set total", "task", id, err)
	}
	_, snap, err := e.announce(ctx, id)
	return snap, err
}

// TimeEntries lists the task's sessions, newest first.
func (e Engine) TimeEntries(ctx context.Context, id int64) ([]domain.TimeEntry, error) {
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return nil, e.fail("time entries", "task", id, err)
	}
	entries, err := e.Repo.ListTimeEntries(ctx, id)
	if err != nil {
		return nil, e.fail("time entries", "task", id, err)
	}
	return entries, nil
}
