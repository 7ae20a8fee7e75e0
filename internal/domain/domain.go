package domain

import "time"

type Status string

const (
	StatusInbox     Status = "inbox"
	StatusWaiting   Status = "waiting"
	StatusNext      Status = "next"
	StatusExecuting Status = "executing"
	StatusDone      Status = "done"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInbox, StatusWaiting, StatusNext, StatusExecuting, StatusDone:
		return true
	}
	return false
}

type Category string

const (
	CategoryUrgent   Category = "urgent"
	CategoryPriority Category = "priority"
	CategoryNormal   Category = "normal"
	CategoryTimeLeak Category = "time_leak"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryUrgent, CategoryPriority, CategoryNormal, CategoryTimeLeak:
		return true
	}
	return false
}

type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

type Task struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	TotalSeconds     int64     `json:"total_seconds"`
	TimeLimitSeconds *int64    `json:"time_limit_seconds,omitempty"`
	Status           Status    `json:"status" enum:"inbox,waiting,next,executing,done"`
	Category         Category  `json:"category" enum:"urgent,priority,normal,time_leak"`
	IsRunning        bool      `json:"is_running"`
	IsArchived       bool      `json:"is_archived"`
	CreatedAt        time.Time `json:"created_at" format:"date-time"`
	UpdatedAt        time.Time `json:"updated_at" format:"date-time"`
	Tags             []Tag     `json:"tags"`
}

// TimeEntry is one start→stop interval. EndTime and DurationSeconds are nil
// while the session is open.
type TimeEntry struct {
	ID              int64      `json:"id"`
	TaskID          int64      `json:"task_id"`
	StartTime       time.Time  `json:"start_time" format:"date-time"`
	EndTime         *time.Time `json:"end_time,omitempty" format:"date-time"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

func (e TimeEntry) Open() bool { return e.EndTime == nil }

// Snapshot is the immutable view of the active timer handed to projections
// and surfaces. A zero TaskID means nothing is running.
type Snapshot struct {
	TaskID           int64     `json:"task_id"`
	TaskName         string    `json:"task_name,omitempty"`
	BaseSeconds      int64     `json:"base_seconds"`
	StartTime        time.Time `json:"start_time,omitempty" format:"date-time"`
	Running          bool      `json:"running"`
	TimeLimitSeconds *int64    `json:"time_limit_seconds,omitempty"`
	Category         Category  `json:"category,omitempty"`
	TakenAt          time.Time `json:"taken_at" format:"date-time"`
}

// SnapshotOf builds a snapshot for t; open is the task's open session, if any.
func SnapshotOf(t Task, open *TimeEntry, at time.Time) Snapshot {
	s := Snapshot{
		TaskID:           t.ID,
		TaskName:         t.Name,
		BaseSeconds:      t.TotalSeconds,
		TimeLimitSeconds: t.TimeLimitSeconds,
		Category:         t.Category,
		TakenAt:          at,
	}
	if t.IsRunning && open != nil {
		s.Running = true
		s.StartTime = open.StartTime
	}
	return s
}

// Elapsed returns whole seconds between start and now, never negative.
func Elapsed(start, now time.Time) int64 {
	d := now.Sub(start)
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

// DisplaySeconds is the live value for a snapshot at now.
func (s Snapshot) DisplaySeconds(now time.Time) int64 {
	if !s.Running {
		return s.BaseSeconds
	}
	return s.BaseSeconds + Elapsed(s.StartTime, now)
}

// SameSession reports whether two snapshots describe the same open session.
func (s Snapshot) SameSession(o Snapshot) bool {
	return s.Running && o.Running && s.TaskID == o.TaskID && s.StartTime.Equal(o.StartTime)
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id,omitempty"`
	Payload    string `json:"payload"`
}

type DailyStat struct {
	Date         string `json:"date"`
	DayOfWeek    int    `json:"day_of_week"`
	TotalSeconds int64  `json:"total_seconds"`
}

type TaskTimeStat struct {
	TaskID       int64  `json:"task_id"`
	TaskName     string `json:"task_name"`
	TotalSeconds int64  `json:"total_seconds"`
}

type CategoryStat struct {
	Category     Category `json:"category"`
	TotalSeconds int64    `json:"total_seconds"`
	TaskCount    int64    `json:"task_count"`
}

type StatusStat struct {
	Status       Status `json:"status"`
	TotalSeconds int64  `json:"total_seconds"`
}

type HeatmapDay struct {
	Date    string `json:"date"`
	Seconds int64  `json:"seconds"`
}

type GeneralStats struct {
	TotalTasks        int64 `json:"total_tasks"`
	CompletedTasks    int64 `json:"completed_tasks"`
	TotalTimeSeconds  int64 `json:"total_time_seconds"`
	TotalSessions     int64 `json:"total_sessions"`
	AvgSessionSeconds int64 `json:"avg_session_seconds"`
}
