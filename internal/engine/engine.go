package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
	"tasktimer/internal/events"
	"tasktimer/internal/repo"
)

// Publisher receives the canonical snapshot after every committed mutation.
type Publisher interface {
	Publish(domain.Snapshot)
}

// Syncer mirrors tasks to an external workspace. Implementations must not
// block the caller and report their own failures.
type Syncer interface {
	PushTask(ctx context.Context, t domain.Task)
	ArchiveRemote(ctx context.Context, t domain.Task)
}

// Engine is the session engine: a stateless layer over the store that keeps
// at most one task running.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Hub    Publisher
	Sync   Syncer
	Log    zerolog.Logger
	Now    func() time.Time
}

func New(db *sql.DB) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Log:    zerolog.Nop(),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType string, taskID int64, payload events.EventPayload) error {
	w := e.Events
	w.Now = e.now
	return w.Append(ctx, tx, evtType, "task", taskID, payload)
}

func (e Engine) publish(s domain.Snapshot) {
	if e.Hub != nil {
		e.Hub.Publish(s)
	}
}

func (e Engine) push(ctx context.Context, t domain.Task) {
	if e.Sync != nil {
		e.Sync.PushTask(context.WithoutCancel(ctx), t)
	}
}

// announce re-reads a committed task, publishes its snapshot and mirrors it.
func (e Engine) announce(ctx context.Context, id int64) (domain.Task, domain.Snapshot, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, domain.Snapshot{}, e.fail("reload task", "task", id, err)
	}
	var open *domain.TimeEntry
	if t.IsRunning {
		if entry, err := e.Repo.ActiveTimeEntry(ctx, id); err == nil {
			open = &entry
		}
	}
	snap := domain.SnapshotOf(t, open, e.now())
	e.publish(snap)
	e.push(ctx, t)
	return t, snap, nil
}

// Active returns the running task's snapshot, or an idle snapshot.
func (e Engine) Active(ctx context.Context) (domain.Snapshot, error) {
	t, open, err := e.Repo.RunningTask(ctx)
	if err != nil {
		if isNotFound(err) {
			return domain.Snapshot{TakenAt: e.now()}, nil
		}
		return domain.Snapshot{}, e.fail("active", "task", 0, err)
	}
	if open == nil {
		e.Log.Warn().Int64("task_id", t.ID).Msg("task flagged running without an open session")
	}
	return domain.SnapshotOf(t, open, e.now()), nil
}

// Snapshot returns the current snapshot of one task.
func (e Engine) Snapshot(ctx context.Context, id int64) (domain.Snapshot, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Snapshot{}, e.fail("snapshot", "task", id, err)
	}
	var open *domain.TimeEntry
	if t.IsRunning {
		if entry, err := e.Repo.ActiveTimeEntry(ctx, id); err == nil {
			open = &entry
		}
	}
	return domain.SnapshotOf(t, open, e.now()), nil
}

func (e Engine) snapshotTx(ctx context.Context, tx *sql.Tx, t domain.Task) (domain.Snapshot, error) {
	var open *domain.TimeEntry
	if t.IsRunning {
		entry, err := e.Repo.ActiveTimeEntryTx(ctx, tx, t.ID)
		switch {
		case err == nil:
			open = &entry
		case !isNotFound(err):
			return domain.Snapshot{}, e.fail("snapshot", "task", t.ID, err)
		}
	}
	return domain.SnapshotOf(t, open, e.now()), nil
}
