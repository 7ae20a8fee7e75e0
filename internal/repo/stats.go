package repo

import (
	"context"
	"database/sql"
	"math"
	"time"

	"tasktimer/internal/domain"
)

// DefaultTopTasks is the row count returned by TopTasks when limit <= 0.
const DefaultTopTasks = 10

// DailyStats sums closed session time per day since the cut-off.
func (r Repo) DailyStats(ctx context.Context, since time.Time) ([]domain.DailyStat, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT date(start_time) AS day,
		       CAST(strftime('%w', start_time) AS INTEGER) AS dow,
		       SUM(COALESCE(duration_seconds,0)) AS total
		FROM time_entries
		WHERE start_time >= ? AND end_time IS NOT NULL
		GROUP BY day
		ORDER BY day`, FormatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DailyStat{}
	for rows.Next() {
		var s domain.DailyStat
		if err := rows.Scan(&s.Date, &s.DayOfWeek, &s.TotalSeconds); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// TopTasks lists tasks with tracked time, largest total first.
func (r Repo) TopTasks(ctx context.Context, limit int) ([]domain.TaskTimeStat, error) {
	if limit <= 0 {
		limit = DefaultTopTasks
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,total_seconds FROM tasks WHERE total_seconds > 0 ORDER BY total_seconds DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TaskTimeStat{}
	for rows.Next() {
		var s domain.TaskTimeStat
		if err := rows.Scan(&s.TaskID, &s.TaskName, &s.TotalSeconds); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CategoryStats(ctx context.Context) ([]domain.CategoryStat, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT category, SUM(total_seconds), COUNT(*)
		FROM tasks
		WHERE total_seconds > 0
		GROUP BY category
		ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.CategoryStat{}
	for rows.Next() {
		var (
			s   domain.CategoryStat
			cat string
		)
		if err := rows.Scan(&cat, &s.TotalSeconds, &s.TaskCount); err != nil {
			return nil, err
		}
		s.Category = domain.Category(cat)
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) StatusStats(ctx context.Context) ([]domain.StatusStat, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT status, SUM(total_seconds)
		FROM tasks
		WHERE total_seconds > 0
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StatusStat{}
	for rows.Next() {
		var (
			s      domain.StatusStat
			status string
		)
		if err := rows.Scan(&status, &s.TotalSeconds); err != nil {
			return nil, err
		}
		s.Status = domain.Status(status)
		res = append(res, s)
	}
	return res, rows.Err()
}

// Heatmap returns seconds tracked per day since the cut-off.
func (r Repo) Heatmap(ctx context.Context, since time.Time) ([]domain.HeatmapDay, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT date(start_time) AS day, SUM(COALESCE(duration_seconds,0))
		FROM time_entries
		WHERE start_time >= ? AND end_time IS NOT NULL
		GROUP BY day
		ORDER BY day`, FormatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.HeatmapDay{}
	for rows.Next() {
		var d domain.HeatmapDay
		if err := rows.Scan(&d.Date, &d.Seconds); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) GeneralStats(ctx context.Context) (domain.GeneralStats, error) {
	var (
		g         domain.GeneralStats
		completed sql.NullInt64
		total     sql.NullInt64
		avg       sql.NullFloat64
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       SUM(CASE WHEN status = ? THEN 1 ELSE 0 END),
		       SUM(total_seconds)
		FROM tasks`, string(domain.StatusDone)).Scan(&g.TotalTasks, &completed, &total)
	if err != nil {
		return g, err
	}
	g.CompletedTasks = completed.Int64
	g.TotalTimeSeconds = total.Int64
	err = r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(duration_seconds)
		FROM time_entries
		WHERE end_time IS NOT NULL`).Scan(&g.TotalSessions, &avg)
	if err != nil {
		return g, err
	}
	if avg.Valid {
		g.AvgSessionSeconds = int64(math.Round(avg.Float64))
	}
	return g, nil
}
