// Package notify turns projection ticks into user notifications.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
)

type Kind string

const (
	KindLimitReached Kind = "limit_reached"
	KindTimeLeak     Kind = "time_leak"
)

type Notification struct {
	Kind   Kind
	TaskID int64
	Title  string
	Body   string
}

// Notifier delivers a notification. Callers treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Log zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	l.Log.Info().
		Str("kind", string(n.Kind)).
		Int64("task_id", n.TaskID).
		Str("title", n.Title).
		Msg(n.Body)
	return nil
}

// Debounced drops a notification identical in title and body to the last
// delivered one while inside Window.
type Debounced struct {
	Next   Notifier
	Window time.Duration
	Now    func() time.Time

	mu     sync.Mutex
	lastID string
	lastAt time.Time
}

func NewDebounced(next Notifier, window time.Duration) *Debounced {
	return &Debounced{Next: next, Window: window, Now: time.Now}
}

func (d *Debounced) Notify(ctx context.Context, n Notification) error {
	key := n.Title + "-" + n.Body
	d.mu.Lock()
	now := d.Now()
	if key == d.lastID && now.Sub(d.lastAt) < d.Window {
		d.mu.Unlock()
		return nil
	}
	d.lastID = key
	d.lastAt = now
	d.mu.Unlock()
	return d.Next.Notify(ctx, n)
}

type LeakLevel int

const (
	LeakNone LeakLevel = iota
	LeakLow
	LeakWarn
	LeakAlert
)

func (l LeakLevel) String() string {
	switch l {
	case LeakLow:
		return "low"
	case LeakWarn:
		return "warn"
	case LeakAlert:
		return "alert"
	default:
		return "none"
	}
}

// LeakLevelOf grades a time-leak task by accumulated seconds: any time is
// low, 30 minutes warns, an hour alerts. Other categories are never graded.
func LeakLevelOf(category domain.Category, seconds int64) LeakLevel {
	if category != domain.CategoryTimeLeak {
		return LeakNone
	}
	switch {
	case seconds >= 3600:
		return LeakAlert
	case seconds >= 1800:
		return LeakWarn
	case seconds > 0:
		return LeakLow
	default:
		return LeakNone
	}
}
