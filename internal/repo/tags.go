package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"tasktimer/internal/domain"
)

// TagPalette holds the colours new tags are drawn from.
var TagPalette = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#f43f5e", "#f97316",
	"#eab308", "#22c55e", "#14b8a6", "#0ea5e9", "#3b82f6",
}

// DefaultTagColor is used when the palette is empty.
const DefaultTagColor = "#6366f1"

var pickColor = func() string {
	if len(TagPalette) == 0 {
		return DefaultTagColor
	}
	return TagPalette[rand.IntN(len(TagPalette))]
}

func scanTag(row rowScanner) (domain.Tag, error) {
	var (
		t         domain.Tag
		createdAt string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Color, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.CreatedAt, err = ParseTime(createdAt)
	return t, err
}

func (r Repo) CreateTagTx(ctx context.Context, tx *sql.Tx, name, color string, now time.Time) (domain.Tag, error) {
	name = strings.TrimSpace(name)
	if color == "" {
		color = pickColor()
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO tags(name,color,created_at) VALUES (?,?,?)`, name, color, FormatTime(now))
	if err != nil {
		return domain.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Tag{}, err
	}
	return domain.Tag{ID: id, Name: name, Color: color, CreatedAt: now.UTC().Truncate(time.Millisecond)}, nil
}

func (r Repo) GetTag(ctx context.Context, id int64) (domain.Tag, error) {
	return scanTag(r.DB.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM tags WHERE id=?`, id))
}

// GetTagByName matches names case-insensitively.
func (r Repo) GetTagByName(ctx context.Context, name string) (domain.Tag, error) {
	return getTagByName(ctx, r.DB, name)
}

func getTagByName(ctx context.Context, q dbtx, name string) (domain.Tag, error) {
	return scanTag(q.QueryRowContext(ctx, `SELECT id,name,color,created_at FROM tags WHERE name=? COLLATE NOCASE`, strings.TrimSpace(name)))
}

// GetOrCreateTagTx returns the tag matching name ignoring case, creating it
// with the given spelling when none exists.
func (r Repo) GetOrCreateTagTx(ctx context.Context, tx *sql.Tx, name string, now time.Time) (domain.Tag, bool, error) {
	t, err := getTagByName(ctx, tx, name)
	if err == nil {
		return t, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return t, false, err
	}
	t, err = r.CreateTagTx(ctx, tx, name, "", now)
	return t, err == nil, err
}

func (r Repo) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,color,created_at FROM tags ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// DeleteTagTx removes the tag; associations go with it through the cascade.
func (r Repo) DeleteTagTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return mustAffect(res)
}

func tagsForTasks(ctx context.Context, q dbtx, taskIDs []int64) (map[int64][]domain.Tag, error) {
	res := make(map[int64][]domain.Tag, len(taskIDs))
	if len(taskIDs) == 0 {
		return res, nil
	}
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT tt.task_id,t.id,t.name,t.color,t.created_at FROM task_tags tt JOIN tags t ON t.id=tt.tag_id WHERE tt.task_id IN (%s) ORDER BY t.name COLLATE NOCASE ASC`, placeholders(len(taskIDs))), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			taskID    int64
			t         domain.Tag
			createdAt string
		)
		if err := rows.Scan(&taskID, &t.ID, &t.Name, &t.Color, &createdAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, err
		}
		res[taskID] = append(res[taskID], t)
	}
	return res, rows.Err()
}

// ResolveTagsTx turns a TagSet into tag ids: ids must exist, names are
// get-or-created. The result keeps first-seen order without duplicates.
func (r Repo) ResolveTagsTx(ctx context.Context, tx *sql.Tx, set TagSet, now time.Time) ([]int64, error) {
	var ids []int64
	for _, id := range set.IDs {
		if slices.Contains(ids, id) {
			continue
		}
		var found int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE id=?`, id).Scan(&found); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("tag %d: %w", id, ErrNotFound)
			}
			return nil, err
		}
		ids = append(ids, id)
	}
	for _, name := range set.Names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, _, err := r.GetOrCreateTagTx(ctx, tx, name, now)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(ids, t.ID) {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// ReplaceTaskTagsTx clears the task's associations then inserts the resolved set.
func (r Repo) ReplaceTaskTagsTx(ctx context.Context, tx *sql.Tx, taskID int64, set TagSet, now time.Time) error {
	ids, err := r.ResolveTagsTx(ctx, tx, set, now)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id=?`, taskID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_tags(task_id,tag_id) VALUES (?,?)`, taskID, id); err != nil {
			return fmt.Errorf("link tag %d: %w", id, err)
		}
	}
	return nil
}

// TaskIDsWithTag lists the tasks currently linked to the tag.
func (r Repo) TaskIDsWithTag(ctx context.Context, tagID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT task_id FROM task_tags WHERE tag_id=? ORDER BY task_id`, tagID)
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
