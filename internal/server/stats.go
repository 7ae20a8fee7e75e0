package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
)

type listOutput[T any] struct {
	Body []T `json:"body"`
}

func registerStats(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats-daily",
		Method:      http.MethodGet,
		Path:        "/stats/daily",
		Summary:     "Tracked time per day over the last 30 days",
	}, func(ctx context.Context, _ *struct{}) (*listOutput[domain.DailyStat], error) {
		items, err := e.DailyStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &listOutput[domain.DailyStat]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-tasks",
		Method:      http.MethodGet,
		Path:        "/stats/tasks",
		Summary:     "Tasks with the most tracked time",
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"10"`
	}) (*listOutput[domain.TaskTimeStat], error) {
		items, err := e.TopTasks(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &listOutput[domain.TaskTimeStat]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-categories",
		Method:      http.MethodGet,
		Path:        "/stats/categories",
		Summary:     "Tracked time per category",
	}, func(ctx context.Context, _ *struct{}) (*listOutput[domain.CategoryStat], error) {
		items, err := e.CategoryStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &listOutput[domain.CategoryStat]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-statuses",
		Method:      http.MethodGet,
		Path:        "/stats/statuses",
		Summary:     "Tracked time per status",
	}, func(ctx context.Context, _ *struct{}) (*listOutput[domain.StatusStat], error) {
		items, err := e.StatusStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &listOutput[domain.StatusStat]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-heatmap",
		Method:      http.MethodGet,
		Path:        "/stats/heatmap",
		Summary:     "Tracked time per day over the last year",
	}, func(ctx context.Context, _ *struct{}) (*listOutput[domain.HeatmapDay], error) {
		items, err := e.Heatmap(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &listOutput[domain.HeatmapDay]{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stats-general",
		Method:      http.MethodGet,
		Path:        "/stats/general",
		Summary:     "Workspace totals",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.GeneralStats `json:"body"`
	}, error) {
		s, err := e.GeneralStats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GeneralStats `json:"body"`
		}{Body: s}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"task,tag"`
		EntityID   int64  `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		items, err := e.Events(ctx, normalizeLimit(input.Limit), input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: paginatedEvents{Items: items}}, nil
	})
}
