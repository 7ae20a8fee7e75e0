package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tasktimer/internal/domain"
)

const taskColumns = `id,name,COALESCE(description,''),total_seconds,time_limit_seconds,status,category,is_running,is_archived,created_at,updated_at`

// TaskInput is the row inserted by InsertTaskTx.
type TaskInput struct {
	Name             string
	Description      string
	TimeLimitSeconds *int64
	Category         domain.Category
	Status           domain.Status
}

// TagSet names tags by id, by name, or both. Names are resolved through
// get-or-create and deduplicated against the ids.
type TagSet struct {
	IDs   []int64
	Names []string
}

func (s TagSet) Empty() bool { return len(s.IDs) == 0 && len(s.Names) == 0 }

// TaskPatch holds optional field updates. A nil field is left untouched.
// A TimeLimitSeconds pointing at 0 clears the limit. A non-nil Tags replaces
// the whole tag set, so &TagSet{} removes every tag.
type TaskPatch struct {
	Name             *string
	Description      *string
	TimeLimitSeconds *int64
	Status           *domain.Status
	Category         *domain.Category
	Tags             *TagSet
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                    domain.Task
		limit                sql.NullInt64
		status, category     string
		running, archived    int
		createdAt, updatedAt string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.TotalSeconds, &limit, &status, &category, &running, &archived, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if limit.Valid {
		v := limit.Int64
		t.TimeLimitSeconds = &v
	}
	t.Status = domain.Status(status)
	t.Category = domain.Category(category)
	if t.Category == "" {
		t.Category = domain.CategoryNormal
	}
	t.IsRunning = running != 0
	t.IsArchived = archived != 0
	if t.CreatedAt, err = ParseTime(createdAt); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return t, err
	}
	t.Tags = []domain.Tag{}
	return t, nil
}

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, in TaskInput, now time.Time) (int64, error) {
	if in.Category == "" {
		in.Category = domain.CategoryNormal
	}
	if in.Status == "" {
		in.Status = domain.StatusInbox
	}
	ts := FormatTime(now)
	res, err := tx.ExecContext(ctx, `INSERT INTO tasks(name,description,time_limit_seconds,status,category,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		strings.TrimSpace(in.Name), nullable(in.Description), nullableInt(in.TimeLimitSeconds), string(in.Status), string(in.Category), ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func (r Repo) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	return getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Task, error) {
	return getTask(ctx, tx, id)
}

func getTask(ctx context.Context, q dbtx, id int64) (domain.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	tags, err := tagsForTasks(ctx, q, []int64{id})
	if err != nil {
		return t, err
	}
	if ts, ok := tags[id]; ok {
		t.Tags = ts
	}
	return t, nil
}

// ListTasks returns tasks whose archived flag equals archived, most recently
// updated first.
func (r Repo) ListTasks(ctx context.Context, archived bool) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE is_archived=? ORDER BY updated_at DESC, id DESC`, boolInt(archived))
	if err != nil {
		return nil, err
	}
	res := []domain.Task{}
	var ids []int64
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, t)
		ids = append(ids, t.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	// Tags are loaded after the cursor is closed: the pool holds one connection.
	tags, err := tagsForTasks(ctx, r.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range res {
		if ts, ok := tags[res[i].ID]; ok {
			res[i].Tags = ts
		}
	}
	return res, nil
}

// UpdateTaskTx applies patch and always bumps updated_at.
func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, id int64, patch TaskPatch, now time.Time) error {
	var (
		fields []string
		args   []any
	)
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, strings.TrimSpace(*patch.Name))
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.TimeLimitSeconds != nil {
		fields = append(fields, "time_limit_seconds=?")
		args = append(args, nullableInt(patch.TimeLimitSeconds))
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, string(*patch.Status))
	}
	if patch.Category != nil {
		fields = append(fields, "category=?")
		args = append(args, string(*patch.Category))
	}
	fields = append(fields, "updated_at=?")
	args = append(args, FormatTime(now), id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if err := mustAffect(res); err != nil {
		return err
	}
	if patch.Tags != nil {
		return r.ReplaceTaskTagsTx(ctx, tx, id, *patch.Tags, now)
	}
	return nil
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return mustAffect(res)
}

// SetArchivedTx toggles the archived flag. Running state is left alone.
func (r Repo) SetArchivedTx(ctx context.Context, tx *sql.Tx, id int64, archived bool, now time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET is_archived=?, updated_at=? WHERE id=?`, boolInt(archived), FormatTime(now), id)
	if err != nil {
		return fmt.Errorf("archive task: %w", err)
	}
	return mustAffect(res)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
