package engine

import (
	"context"
	"regexp"
	"strings"

	"tasktimer/internal/domain"
	"tasktimer/internal/events"
	"tasktimer/internal/repo"
)

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Name             string
	Description      string
	TimeLimitSeconds *int64
	Category         domain.Category
	TagIDs           []int64
	TagNames         []string
}

// TaskUpdateOptions encapsulates allowed updates. Nil fields are left alone.
// A non-nil TagIDs or TagNames replaces the whole tag set; an empty,
// non-nil TagIDs clears it.
type TaskUpdateOptions struct {
	ID               int64
	Name             *string
	Description      *string
	TimeLimitSeconds *int64
	Status           *domain.Status
	Category         *domain.Category
	TagIDs           []int64
	TagNames         []string
}

func (o TaskUpdateOptions) replacesTags() bool {
	return o.TagIDs != nil || o.TagNames != nil
}

func validateLimit(limit *int64) (*int64, error) {
	if limit == nil {
		return nil, nil
	}
	if *limit < 0 {
		return nil, ValidationError{Field: "time_limit_seconds", Reason: "must not be negative"}
	}
	return limit, nil
}

func (e Engine) checkTagIDs(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if _, err := e.Repo.GetTag(ctx, id); err != nil {
			return e.fail("resolve tag", "tag", id, err)
		}
	}
	return nil
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Task{}, ValidationError{Field: "name", Reason: "is required"}
	}
	if opts.Category == "" {
		opts.Category = domain.CategoryNormal
	}
	if !opts.Category.Valid() {
		return domain.Task{}, ValidationError{Field: "category", Reason: "unknown category " + string(opts.Category)}
	}
	limit, err := validateLimit(opts.TimeLimitSeconds)
	if err != nil {
		return domain.Task{}, err
	}
	if err := e.checkTagIDs(ctx, opts.TagIDs); err != nil {
		return domain.Task{}, err
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, e.fail("begin create task", "task", 0, err)
	}
	defer tx.Rollback()

	id, err := e.Repo.InsertTaskTx(ctx, tx, repo.TaskInput{
		Name:             opts.Name,
		Description:      opts.Description,
		TimeLimitSeconds: limit,
		Category:         opts.Category,
	}, now)
	if err != nil {
		return domain.Task{}, e.fail("create task", "task", 0, err)
	}
	set := repo.TagSet{IDs: opts.TagIDs, Names: opts.TagNames}
	if !set.Empty() {
		if err := e.Repo.ReplaceTaskTagsTx(ctx, tx, id, set, now); err != nil {
			return domain.Task{}, e.fail("tag task", "task", id, err)
		}
	}
	if err := e.appendEvent(ctx, tx, events.TaskCreated, id, events.EventPayload{
		"name":     strings.TrimSpace(opts.Name),
		"category": opts.Category,
	}); err != nil {
		return domain.Task{}, e.fail("create task", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, e.fail("commit create task", "task", id, err)
	}
	t, _, err := e.announce(ctx, id)
	return t, err
}

func (e Engine) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return t, e.fail("get task", "task", id, err)
	}
	return t, nil
}

func (e Engine) ListTasks(ctx context.Context, archived bool) ([]domain.Task, error) {
	tasks, err := e.Repo.ListTasks(ctx, archived)
	if err != nil {
		return nil, e.fail("list tasks", "task", 0, err)
	}
	return tasks, nil
}

func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	patch := repo.TaskPatch{
		Description: opts.Description,
		Status:      opts.Status,
		Category:    opts.Category,
	}
	changed := []string{}
	if opts.Name != nil {
		if strings.TrimSpace(*opts.Name) == "" {
			return domain.Task{}, ValidationError{Field: "name", Reason: "must not be empty"}
		}
		patch.Name = opts.Name
		changed = append(changed, "name")
	}
	if opts.Description != nil {
		changed = append(changed, "description")
	}
	if opts.TimeLimitSeconds != nil {
		limit, err := validateLimit(opts.TimeLimitSeconds)
		if err != nil {
			return domain.Task{}, err
		}
		patch.TimeLimitSeconds = limit
		changed = append(changed, "time_limit_seconds")
	}
	if opts.Status != nil {
		if !opts.Status.Valid() {
			return domain.Task{}, ValidationError{Field: "status", Reason: "unknown status " + string(*opts.Status)}
		}
		changed = append(changed, "status")
	}
	if opts.Category != nil {
		if !opts.Category.Valid() {
			return domain.Task{}, ValidationError{Field: "category", Reason: "unknown category " + string(*opts.Category)}
		}
		changed = append(changed, "category")
	}
	if opts.replacesTags() {
		if err := e.checkTagIDs(ctx, opts.TagIDs); err != nil {
			return domain.Task{}, err
		}
		patch.Tags = &repo.TagSet{IDs: opts.TagIDs, Names: opts.TagNames}
		changed = append(changed, "tags")
	}

	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, e.fail("begin update task", "task", opts.ID, err)
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTaskTx(ctx, tx, opts.ID, patch, now); err != nil {
		return domain.Task{}, e.fail("update task", "task", opts.ID, err)
	}
	if err := e.appendEvent(ctx, tx, events.TaskUpdated, opts.ID, events.EventPayload{"fields": changed}); err != nil {
		return domain.Task{}, e.fail("update task", "task", opts.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, e.fail("commit update task", "task", opts.ID, err)
	}
	t, _, err := e.announce(ctx, opts.ID)
	return t, err
}

func (e Engine) SetStatus(ctx context.Context, id int64, status domain.Status) (domain.Task, error) {
	return e.UpdateTask(ctx, TaskUpdateOptions{ID: id, Status: &status})
}

func (e Engine) SetCategory(ctx context.Context, id int64, category domain.Category) (domain.Task, error) {
	return e.UpdateTask(ctx, TaskUpdateOptions{ID: id, Category: &category})
}

func (e Engine) ArchiveTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.setArchived(ctx, id, true)
}

func (e Engine) UnarchiveTask(ctx context.Context, id int64) (domain.Task, error) {
	return e.setArchived(ctx, id, false)
}

func (e Engine) setArchived(ctx context.Context, id int64, archived bool) (domain.Task, error) {
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, e.fail("begin archive", "task", id, err)
	}
	defer tx.Rollback()

	if err := e.Repo.SetArchivedTx(ctx, tx, id, archived, now); err != nil {
		return domain.Task{}, e.fail("archive", "task", id, err)
	}
	evt := events.TaskArchived
	if !archived {
		evt = events.TaskUnarchived
	}
	if err := e.appendEvent(ctx, tx, evt, id, nil); err != nil {
		return domain.Task{}, e.fail("archive", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, e.fail("commit archive", "task", id, err)
	}
	t, _, err := e.announce(ctx, id)
	return t, err
}

// DeleteTask removes the task with its sessions and tag links. The remote
// copy is archived first, best effort.
func (e Engine) DeleteTask(ctx context.Context, id int64) error {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return e.fail("delete task", "task", id, err)
	}
	if e.Sync != nil {
		e.Sync.ArchiveRemote(context.WithoutCancel(ctx), t)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return e.fail("begin delete task", "task", id, err)
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTaskTx(ctx, tx, id); err != nil {
		return e.fail("delete task", "task", id, err)
	}
	if err := e.appendEvent(ctx, tx, events.TaskDeleted, id, events.EventPayload{
		"name":          t.Name,
		"total_seconds": t.TotalSeconds,
		"was_running":   t.IsRunning,
	}); err != nil {
		return e.fail("delete task", "task", id, err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail("commit delete task", "task", id, err)
	}
	if t.IsRunning {
		e.publish(domain.Snapshot{TaskID: id, TaskName: t.Name, TakenAt: e.now()})
	}
	return nil
}

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// CreateTag adds a tag. Names are unique ignoring case.
func (e Engine) CreateTag(ctx context.Context, name, color string) (domain.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Tag{}, ValidationError{Field: "name", Reason: "is required"}
	}
	if color != "" && !colorPattern.MatchString(color) {
		return domain.Tag{}, ValidationError{Field: "color", Reason: "must look like #rrggbb"}
	}
	if _, err := e.Repo.GetTagByName(ctx, name); err == nil {
		return domain.Tag{}, ValidationError{Field: "name", Reason: "tag " + name + " already exists"}
	} else if !isNotFound(err) {
		return domain.Tag{}, e.fail("create tag", "tag", 0, err)
	}
	now := e.now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tag{}, e.fail("begin create tag", "tag", 0, err)
	}
	defer tx.Rollback()

	tag, err := e.Repo.CreateTagTx(ctx, tx, name, color, now)
	if err != nil {
		return domain.Tag{}, e.fail("create tag", "tag", 0, err)
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, tx, events.TagCreated, "tag", tag.ID, events.EventPayload{"name": tag.Name, "color": tag.Color}); err != nil {
		return domain.Tag{}, e.fail("create tag", "tag", tag.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Tag{}, e.fail("commit create tag", "tag", tag.ID, err)
	}
	return tag, nil
}

func (e Engine) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := e.Repo.ListTags(ctx)
	if err != nil {
		return nil, e.fail("list tags", "tag", 0, err)
	}
	return tags, nil
}

// DeleteTag removes a tag and its associations. Tagged tasks are mirrored
// again since their tag set changed.
func (e Engine) DeleteTag(ctx context.Context, id int64) error {
	tag, err := e.Repo.GetTag(ctx, id)
	if err != nil {
		return e.fail("delete tag", "tag", id, err)
	}
	affected, err := e.Repo.TaskIDsWithTag(ctx, id)
	if err != nil {
		return e.fail("delete tag", "tag", id, err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return e.fail("begin delete tag", "tag", id, err)
	}
	defer tx.Rollback()

	if err := e.Repo.DeleteTagTx(ctx, tx, id); err != nil {
		return e.fail("delete tag", "tag", id, err)
	}
	w := e.Events
	w.Now = e.now
	if err := w.Append(ctx, tx, events.TagDeleted, "tag", id, events.EventPayload{"name": tag.Name, "tasks": affected}); err != nil {
		return e.fail("delete tag", "tag", id, err)
	}
	if err := tx.Commit(); err != nil {
		return e.fail("commit delete tag", "tag", id, err)
	}
	for _, taskID := range affected {
		if t, err := e.Repo.GetTask(ctx, taskID); err == nil {
			e.push(ctx, t)
		}
	}
	return nil
}
