package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
	"tasktimer/internal/timer"
)

// TickSource streams projection ticks.
type TickSource interface {
	Subscribe() (<-chan timer.Tick, func())
}

type WatcherOptions struct {
	Notifier   Notifier
	NudgeAfter time.Duration
	NudgeEvery time.Duration
	Log        zerolog.Logger
}

// Watcher fires the limit-reached notification once per crossing and nudges
// about running time-leak tasks.
type Watcher struct {
	notifier   Notifier
	nudgeAfter int64
	nudgeEvery int64
	log        zerolog.Logger

	task       int64
	limitFired bool
	nextNudge  int64
}

func NewWatcher(opts WatcherOptions) *Watcher {
	w := &Watcher{
		notifier:   opts.Notifier,
		nudgeAfter: int64(opts.NudgeAfter / time.Second),
		nudgeEvery: int64(opts.NudgeEvery / time.Second),
		log:        opts.Log,
	}
	if w.nudgeAfter <= 0 {
		w.nudgeAfter = 3600
	}
	if w.nudgeEvery <= 0 {
		w.nudgeEvery = 300
	}
	return w
}

// Observe evaluates one tick. It is not safe for concurrent use; Run calls
// it from a single goroutine.
func (w *Watcher) Observe(ctx context.Context, t timer.Tick) {
	if t.TaskID != w.task {
		w.task = t.TaskID
		w.limitFired = false
		w.nextNudge = 0
	}
	if t.TaskID == 0 {
		return
	}

	if lim := t.TimeLimitSeconds; lim != nil && *lim > 0 {
		switch {
		case t.Seconds < *lim:
			w.limitFired = false
		case t.Running && !w.limitFired:
			w.limitFired = true
			w.send(ctx, Notification{
				Kind:   KindLimitReached,
				TaskID: t.TaskID,
				Title:  "Time limit reached",
				Body:   fmt.Sprintf("Task %q reached its time limit", t.TaskName),
			})
		}
	}

	if t.Category != domain.CategoryTimeLeak || t.Seconds < w.nudgeAfter {
		w.nextNudge = 0
		return
	}
	if !t.Running || t.Seconds < w.nextNudge {
		return
	}
	w.nextNudge = t.Seconds + w.nudgeEvery
	w.send(ctx, Notification{
		Kind:   KindTimeLeak,
		TaskID: t.TaskID,
		Title:  "Time leak",
		Body:   fmt.Sprintf("%q has taken %s", t.TaskName, time.Duration(t.Seconds)*time.Second),
	})
}

func (w *Watcher) send(ctx context.Context, n Notification) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(ctx, n); err != nil {
		w.log.Warn().Err(err).Str("kind", string(n.Kind)).Int64("task_id", n.TaskID).Msg("notification failed")
	}
}

// Run observes ticks until ctx is done or the source closes.
func (w *Watcher) Run(ctx context.Context, src TickSource) error {
	ch, cancel := src.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ch:
			if !ok {
				return nil
			}
			w.Observe(ctx, t)
		}
	}
}
