package server

import (
	"tasktimer/internal/domain"
)

// Request payloads

type CreateTaskRequest struct {
	Name             string   `json:"name"`
	Description      *string  `json:"description,omitempty"`
	TimeLimitSeconds *int64   `json:"time_limit_seconds,omitempty"`
	Category         *string  `json:"category,omitempty" enum:"urgent,priority,normal,time_leak"`
	TagIDs           []int64  `json:"tag_ids,omitempty"`
	TagNames         []string `json:"tag_names,omitempty"`
}

// UpdateTaskRequest is a partial update. Sending tag_ids or tag_names
// replaces the task's tags; "tag_ids": [] removes them all.
type UpdateTaskRequest struct {
	Name             *string  `json:"name,omitempty"`
	Description      *string  `json:"description,omitempty"`
	TimeLimitSeconds *int64   `json:"time_limit_seconds,omitempty" doc:"0 clears the limit"`
	Status           *string  `json:"status,omitempty" enum:"inbox,waiting,next,executing,done"`
	Category         *string  `json:"category,omitempty" enum:"urgent,priority,normal,time_leak"`
	TagIDs           []int64  `json:"tag_ids,omitempty"`
	TagNames         []string `json:"tag_names,omitempty"`
}

type SecondsRequest struct {
	Seconds int64 `json:"seconds"`
}

type CreateTagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty" example:"#22c55e"`
}

// FloatStopRequest is a stop issued by a secondary surface, stamped with
// the generation it was rendering.
type FloatStopRequest struct {
	Generation string `json:"generation"`
	TaskID     int64  `json:"task_id"`
}

// Response payloads

// TimerResponse is a snapshot with its live value at the moment it was taken.
type TimerResponse struct {
	TaskID           int64           `json:"task_id"`
	TaskName         string          `json:"task_name,omitempty"`
	Running          bool            `json:"running"`
	BaseSeconds      int64           `json:"base_seconds"`
	DisplaySeconds   int64           `json:"display_seconds"`
	StartTime        string          `json:"start_time,omitempty" format:"date-time"`
	TimeLimitSeconds *int64          `json:"time_limit_seconds,omitempty"`
	Category         domain.Category `json:"category,omitempty"`
	TakenAt          string          `json:"taken_at" format:"date-time"`
}

func timerResponse(s domain.Snapshot) TimerResponse {
	r := TimerResponse{
		TaskID:           s.TaskID,
		TaskName:         s.TaskName,
		Running:          s.Running,
		BaseSeconds:      s.BaseSeconds,
		DisplaySeconds:   s.DisplaySeconds(s.TakenAt),
		TimeLimitSeconds: s.TimeLimitSeconds,
		Category:         s.Category,
		TakenAt:          s.TakenAt.UTC().Format(timeLayout),
	}
	if s.Running {
		r.StartTime = s.StartTime.UTC().Format(timeLayout)
	}
	return r
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

type paginatedEvents struct {
	Items []domain.Event `json:"items"`
}
