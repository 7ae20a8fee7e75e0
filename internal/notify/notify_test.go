package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/domain"
	"tasktimer/internal/hub"
	"tasktimer/internal/timer"
)

type recorder struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recorder) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

func limit(v int64) *int64 { return &v }

func TestLimitReachedFiresOnce(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	ctx := context.Background()
	tick := timer.Tick{TaskID: 1, TaskName: "Deep work", Running: true, TimeLimitSeconds: limit(60)}

	for s := int64(55); s <= 70; s++ {
		tick.Seconds = s
		w.Observe(ctx, tick)
	}
	require.Len(t, rec.sent, 1)
	assert.Equal(t, KindLimitReached, rec.sent[0].Kind)
	assert.Contains(t, rec.sent[0].Body, "Deep work")

	tick.Running = false
	w.Observe(ctx, tick)
	tick.Running = true
	tick.Seconds = 80
	w.Observe(ctx, tick)
	assert.Len(t, rec.sent, 1, "stop and restart above the limit stays quiet")
}

func TestLimitLatchResetsBelowLimit(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	ctx := context.Background()

	w.Observe(ctx, timer.Tick{TaskID: 1, Seconds: 60, Running: true, TimeLimitSeconds: limit(60)})
	w.Observe(ctx, timer.Tick{TaskID: 1, Seconds: 0, Running: false, TimeLimitSeconds: limit(60)})
	w.Observe(ctx, timer.Tick{TaskID: 1, Seconds: 61, Running: true, TimeLimitSeconds: limit(60)})
	assert.Len(t, rec.sent, 2)
}

func TestLimitLatchResetsOnTaskChange(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	ctx := context.Background()

	w.Observe(ctx, timer.Tick{TaskID: 1, Seconds: 60, Running: true, TimeLimitSeconds: limit(60)})
	w.Observe(ctx, timer.Tick{TaskID: 2, Seconds: 10, Running: true})
	w.Observe(ctx, timer.Tick{TaskID: 1, Seconds: 61, Running: true, TimeLimitSeconds: limit(60)})
	assert.Len(t, rec.sent, 2)
}

func TestNoLimitNoNotification(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	w.Observe(context.Background(), timer.Tick{TaskID: 1, Seconds: 99999, Running: true})
	assert.Empty(t, rec.sent)
}

func TestTimeLeakNudges(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, NudgeAfter: time.Hour, NudgeEvery: 5 * time.Minute, Log: zerolog.Nop()})
	ctx := context.Background()
	tick := timer.Tick{TaskID: 3, TaskName: "Email", Running: true, Category: domain.CategoryTimeLeak}

	for s := int64(3590); s <= 3600+10*60; s++ {
		tick.Seconds = s
		w.Observe(ctx, tick)
	}
	assert.Equal(t, []Kind{KindTimeLeak, KindTimeLeak, KindTimeLeak}, rec.kinds())
	assert.Contains(t, rec.sent[0].Body, "1h0m0s")
}

func TestNotifierErrorsAreSwallowed(t *testing.T) {
	rec := &recorder{err: errors.New("no display")}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	assert.NotPanics(t, func() {
		w.Observe(context.Background(), timer.Tick{TaskID: 1, Seconds: 5, Running: true, TimeLimitSeconds: limit(5)})
	})
	assert.Len(t, rec.sent, 1)
}

func TestDebounced(t *testing.T) {
	rec := &recorder{}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDebounced(rec, 5*time.Second)
	d.Now = func() time.Time { return now }
	ctx := context.Background()
	n := Notification{Title: "Time limit reached", Body: "x"}

	require.NoError(t, d.Notify(ctx, n))
	require.NoError(t, d.Notify(ctx, n))
	assert.Len(t, rec.sent, 1)

	require.NoError(t, d.Notify(ctx, Notification{Title: "Time leak", Body: "x"}))
	assert.Len(t, rec.sent, 2)

	now = now.Add(6 * time.Second)
	require.NoError(t, d.Notify(ctx, Notification{Title: "Time leak", Body: "x"}))
	assert.Len(t, rec.sent, 3)
}

func TestLeakLevelOf(t *testing.T) {
	tests := []struct {
		category domain.Category
		seconds  int64
		want     LeakLevel
	}{
		{domain.CategoryTimeLeak, 0, LeakNone},
		{domain.CategoryTimeLeak, 1, LeakLow},
		{domain.CategoryTimeLeak, 1800, LeakWarn},
		{domain.CategoryTimeLeak, 3599, LeakWarn},
		{domain.CategoryTimeLeak, 3600, LeakAlert},
		{domain.CategoryNormal, 7200, LeakNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LeakLevelOf(tt.category, tt.seconds), "%s %d", tt.category, tt.seconds)
	}
}

func TestWatcherRun(t *testing.T) {
	rec := &recorder{}
	w := NewWatcher(WatcherOptions{Notifier: rec, Log: zerolog.Nop()})
	src := hub.New[timer.Tick](zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, src) }()

	src.Publish(timer.Tick{TaskID: 1, Seconds: 10, Running: true, TimeLimitSeconds: limit(10)})
	require.Eventually(t, func() bool { return len(rec.kinds()) == 1 }, time.Second, 5*time.Millisecond)

	src.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after source closed")
	}
}
