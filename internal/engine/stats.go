package engine

import (
	"context"

	"tasktimer/internal/domain"
)

const (
	dailyWindowDays   = 30
	heatmapWindowDays = 365
)

// DailyStats totals closed sessions per day over the last 30 days.
func (e Engine) DailyStats(ctx context.Context) ([]domain.DailyStat, error) {
	res, err := e.Repo.DailyStats(ctx, e.now().AddDate(0, 0, -dailyWindowDays))
	if err != nil {
		return nil, e.fail("daily stats", "stats", 0, err)
	}
	return res, nil
}

func (e Engine) TopTasks(ctx context.Context, limit int) ([]domain.TaskTimeStat, error) {
	res, err := e.Repo.TopTasks(ctx, limit)
	if err != nil {
		return nil, e.fail("top tasks", "stats", 0, err)
	}
	return res, nil
}

func (e Engine) CategoryStats(ctx context.Context) ([]domain.CategoryStat, error) {
	res, err := e.Repo.CategoryStats(ctx)
	if err != nil {
		return nil, e.fail("category stats", "stats", 0, err)
	}
	return res, nil
}

func (e Engine) StatusStats(ctx context.Context) ([]domain.StatusStat, error) {
	res, err := e.Repo.StatusStats(ctx)
	if err != nil {
		return nil, e.fail("status stats", "stats", 0, err)
	}
	return res, nil
}

// Heatmap totals closed sessions per day over the last year.
func (e Engine) Heatmap(ctx context.Context) ([]domain.HeatmapDay, error) {
	res, err := e.Repo.Heatmap(ctx, e.now().AddDate(0, 0, -heatmapWindowDays))
	if err != nil {
		return nil, e.fail("heatmap", "stats", 0, err)
	}
	return res, nil
}

func (e Engine) GeneralStats(ctx context.Context) (domain.GeneralStats, error) {
	res, err := e.Repo.GeneralStats(ctx)
	if err != nil {
		return res, e.fail("general stats", "stats", 0, err)
	}
	return res, nil
}

// Events returns the audit log newest first. Empty filters match everything.
func (e Engine) Events(ctx context.Context, limit int, evtType, entityKind string, entityID int64) ([]domain.Event, error) {
	res, err := e.Repo.LatestEvents(ctx, limit, evtType, entityKind, entityID)
	if err != nil {
		return nil, e.fail("events", "event", 0, err)
	}
	return res, nil
}
