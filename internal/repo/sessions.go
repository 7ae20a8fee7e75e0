package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasktimer/internal/domain"
)

const entryColumns = `id,task_id,start_time,end_time,duration_seconds`

func scanEntry(row rowScanner) (domain.TimeEntry, error) {
	var (
		e        domain.TimeEntry
		start    string
		end      sql.NullString
		duration sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.TaskID, &start, &end, &duration)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.StartTime, err = ParseTime(start); err != nil {
		return e, err
	}
	if end.Valid {
		t, err := ParseTime(end.String)
		if err != nil {
			return e, err
		}
		e.EndTime = &t
	}
	if duration.Valid {
		d := duration.Int64
		e.DurationSeconds = &d
	}
	return e, nil
}

// ListTimeEntries returns the task's sessions, newest first.
func (r Repo) ListTimeEntries(ctx context.Context, taskID int64) ([]domain.TimeEntry, error) {
	return listTimeEntries(ctx, r.DB, taskID)
}

func (r Repo) ListTimeEntriesTx(ctx context.Context, tx *sql.Tx, taskID int64) ([]domain.TimeEntry, error) {
	return listTimeEntries(ctx, tx, taskID)
}

func listTimeEntries(ctx context.Context, q dbtx, taskID int64) ([]domain.TimeEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE task_id=? ORDER BY start_time DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// ActiveTimeEntry returns the task's latest open session.
func (r Repo) ActiveTimeEntry(ctx context.Context, taskID int64) (domain.TimeEntry, error) {
	return activeEntry(ctx, r.DB, taskID)
}

func (r Repo) ActiveTimeEntryTx(ctx context.Context, tx *sql.Tx, taskID int64) (domain.TimeEntry, error) {
	return activeEntry(ctx, tx, taskID)
}

func activeEntry(ctx context.Context, q dbtx, taskID int64) (domain.TimeEntry, error) {
	return scanEntry(q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE task_id=? AND end_time IS NULL ORDER BY id DESC LIMIT 1`, taskID))
}

// RunningTask returns the running task and its open session. The session is
// nil when the flag is set without one.
func (r Repo) RunningTask(ctx context.Context) (domain.Task, *domain.TimeEntry, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM tasks WHERE is_running=1 ORDER BY updated_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, nil, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, nil, err
	}
	t, err := r.GetTask(ctx, id)
	if err != nil {
		return t, nil, err
	}
	e, err := r.ActiveTimeEntry(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return t, nil, nil
	}
	if err != nil {
		return t, nil, err
	}
	return t, &e, nil
}

// RunningTaskIDsTx lists every task flagged as running.
func (r Repo) RunningTaskIDsTx(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE is_running=1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StartSessionTx opens a session at now and flags the task running/executing.
func (r Repo) StartSessionTx(ctx context.Context, tx *sql.Tx, taskID int64, now time.Time) (domain.TimeEntry, error) {
	ts := FormatTime(now)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET is_running=1, status=?, updated_at=? WHERE id=?`, string(domain.StatusExecuting), ts, taskID)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("flag task running: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return domain.TimeEntry{}, err
	}
	res, err = tx.ExecContext(ctx, `INSERT INTO time_entries(task_id,start_time) VALUES (?,?)`, taskID, ts)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("open session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.TimeEntry{}, err
	}
	start, _ := ParseTime(ts)
	return domain.TimeEntry{ID: id, TaskID: taskID, StartTime: start}, nil
}

// StopSessionTx closes the task's open session, adds its duration to the
// total and clears the running flag. Without an open session it only clears
// the flag, and only when it is set. The closed entry is returned, if any.
func (r Repo) StopSessionTx(ctx context.Context, tx *sql.Tx, taskID int64, now time.Time) (*domain.TimeEntry, error) {
	var running int
	if err := tx.QueryRowContext(ctx, `SELECT is_running FROM tasks WHERE id=?`, taskID).Scan(&running); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ts := FormatTime(now)
	e, err := activeEntry(ctx, tx, taskID)
	if errors.Is(err, ErrNotFound) {
		if running == 0 {
			return nil, nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET is_running=0, updated_at=? WHERE id=?`, ts, taskID); err != nil {
			return nil, fmt.Errorf("clear running flag: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	end, _ := ParseTime(ts)
	duration := domain.Elapsed(e.StartTime, end)
	if _, err := tx.ExecContext(ctx, `UPDATE time_entries SET end_time=?, duration_seconds=? WHERE id=?`, ts, duration, e.ID); err != nil {
		return nil, fmt.Errorf("close session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET is_running=0, total_seconds=total_seconds+?, updated_at=? WHERE id=?`, duration, ts, taskID); err != nil {
		return nil, fmt.Errorf("accumulate total: %w", err)
	}
	e.EndTime = &end
	e.DurationSeconds = &duration
	return &e, nil
}

// ResetSessionTx closes any open session with zero duration, deletes every
// session of the task and zeroes its total and running flag.
func (r Repo) ResetSessionTx(ctx context.Context, tx *sql.Tx, taskID int64, now time.Time) error {
	ts := FormatTime(now)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET total_seconds=0, is_running=0, updated_at=? WHERE id=?`, ts, taskID)
	if err != nil {
		return fmt.Errorf("reset task: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE time_entries SET end_time=?, duration_seconds=0 WHERE task_id=? AND end_time IS NULL`, ts, taskID); err != nil {
		return fmt.Errorf("close open session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM time_entries WHERE task_id=?`, taskID); err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}

// AddManualEntryTx records an already-closed session of seconds and adds it
// to the task total.
func (r Repo) AddManualEntryTx(ctx context.Context, tx *sql.Tx, taskID, seconds int64, now time.Time) (domain.TimeEntry, error) {
	ts := FormatTime(now)
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET total_seconds=total_seconds+?, updated_at=? WHERE id=?`, seconds, ts, taskID)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("accumulate total: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return domain.TimeEntry{}, err
	}
	res, err = tx.ExecContext(ctx, `INSERT INTO time_entries(task_id,start_time,end_time,duration_seconds) VALUES (?,?,?,?)`, taskID, ts, ts, seconds)
	if err != nil {
		return domain.TimeEntry{}, fmt.Errorf("insert manual entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.TimeEntry{}, err
	}
	at, _ := ParseTime(ts)
	end := at
	return domain.TimeEntry{ID: id, TaskID: taskID, StartTime: at, EndTime: &end, DurationSeconds: &seconds}, nil
}

// SetTotalTx overwrites the accumulated total without touching sessions.
func (r Repo) SetTotalTx(ctx context.Context, tx *sql.Tx, taskID, seconds int64, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET total_seconds=?, updated_at=? WHERE id=?`, seconds, FormatTime(now), taskID)
	if err != nil {
		return fmt.Errorf("set total: %w", err)
	}
	return mustAffect(res)
}
