package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
)

type taskPath struct {
	ID int64 `path:"id"`
}

type taskOutput struct {
	Body domain.Task `json:"body"`
}

type timerOutput struct {
	Body TimerResponse `json:"body"`
}

var mutationErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        mutationErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		opts := engine.TaskCreateOptions{
			Name:             input.Body.Name,
			TimeLimitSeconds: input.Body.TimeLimitSeconds,
			TagIDs:           input.Body.TagIDs,
			TagNames:         input.Body.TagNames,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.Category != nil {
			opts.Category = domain.Category(*input.Body.Category)
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *struct {
		Archived bool `query:"archived" doc:"list archived tasks instead of active ones"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		items, err := e.ListTasks(ctx, input.Archived)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64             `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		raw := rawBodyMap(ctx)
		for _, key := range []string{"tag_ids", "tag_names"} {
			if isNullRaw(raw[key]) {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", key+" must be array", map[string]any{"field": key, "reason": "must be array"})
			}
		}
		opts := engine.TaskUpdateOptions{
			ID:               input.ID,
			Name:             input.Body.Name,
			Description:      input.Body.Description,
			TimeLimitSeconds: input.Body.TimeLimitSeconds,
			TagIDs:           input.Body.TagIDs,
			TagNames:         input.Body.TagNames,
		}
		// an explicit empty list still replaces the tag set
		if _, ok := raw["tag_ids"]; ok && opts.TagIDs == nil {
			opts.TagIDs = []int64{}
		}
		if _, ok := raw["tag_names"]; ok && opts.TagNames == nil {
			opts.TagNames = []string{}
		}
		if input.Body.Status != nil {
			s := domain.Status(*input.Body.Status)
			opts.Status = &s
		}
		if input.Body.Category != nil {
			c := domain.Category(*input.Body.Category)
			opts.Category = &c
		}
		t, err := e.UpdateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task with its sessions",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *taskPath) (*struct{}, error) {
		if err := e.DeleteTask(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/archive",
		Summary:     "Archive task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		t, err := e.ArchiveTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unarchive-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/unarchive",
		Summary:     "Unarchive task",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *taskPath) (*taskOutput, error) {
		t, err := e.UnarchiveTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskOutput{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-time-entries",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/entries",
		Summary:     "List sessions of a task, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body []domain.TimeEntry `json:"body"`
	}, error) {
		items, err := e.TimeEntries(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TimeEntry `json:"body"`
		}{Body: items}, nil
	})
}

func registerTimer(api huma.API, e engine.Engine, active ActiveSource) {
	timerOps := []struct {
		id, path, summary string
		run               func(context.Context, int64) (domain.Snapshot, error)
	}{
		{"start-timer", "/tasks/{id}/start", "Start the task, stopping any other running task", e.Start},
		{"stop-timer", "/tasks/{id}/stop", "Stop the task", e.Stop},
		{"reset-timer", "/tasks/{id}/reset", "Delete every session and zero the total", e.Reset},
	}
	for _, op := range timerOps {
		run := op.run
		huma.Register(api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Errors:      mutationErrors,
		}, func(ctx context.Context, input *taskPath) (*timerOutput, error) {
			snap, err := run(ctx, input.ID)
			if err != nil {
				return nil, handleError(err)
			}
			return &timerOutput{Body: timerResponse(snap)}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "add-manual-entry",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/manual",
		Summary:     "Record retroactive time as a closed session",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body SecondsRequest `json:"body"`
	}) (*timerOutput, error) {
		snap, err := e.AddManualEntry(ctx, input.ID, input.Body.Seconds)
		if err != nil {
			return nil, handleError(err)
		}
		return &timerOutput{Body: timerResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-total",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/total",
		Summary:     "Overwrite the accumulated total",
		Errors:      mutationErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body SecondsRequest `json:"body"`
	}) (*timerOutput, error) {
		snap, err := e.SetTotal(ctx, input.ID, input.Body.Seconds)
		if err != nil {
			return nil, handleError(err)
		}
		return &timerOutput{Body: timerResponse(snap)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "active-timer",
		Method:      http.MethodGet,
		Path:        "/timer",
		Summary:     "Running task snapshot, task_id 0 when idle",
	}, func(ctx context.Context, _ *struct{}) (*timerOutput, error) {
		snap, err := active.Active(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &timerOutput{Body: timerResponse(snap)}, nil
	})
}

func registerTags(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tags",
		Method:      http.MethodGet,
		Path:        "/tags",
		Summary:     "List tags",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Tag `json:"body"`
	}, error) {
		items, err := e.ListTags(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Tag `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-tag",
		Method:        http.MethodPost,
		Path:          "/tags",
		Summary:       "Create tag",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateTagRequest `json:"body"`
	}) (*struct {
		Body domain.Tag `json:"body"`
	}, error) {
		tag, err := e.CreateTag(ctx, input.Body.Name, input.Body.Color)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Tag `json:"body"`
		}{Body: tag}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-tag",
		Method:        http.MethodDelete,
		Path:          "/tags/{id}",
		Summary:       "Delete tag and its task links",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTag(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
