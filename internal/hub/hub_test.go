package hub

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasktimer/internal/domain"
)

func TestSubscribeReplaysLast(t *testing.T) {
	h := New[domain.Snapshot](zerolog.Nop())
	h.Publish(domain.Snapshot{TaskID: 1, Running: true})

	ch, cancel := h.Subscribe()
	defer cancel()

	got := <-ch
	assert.Equal(t, int64(1), got.TaskID)
}

func TestPublishKeepsLatestForSlowSubscriber(t *testing.T) {
	h := New[domain.Snapshot](zerolog.Nop())
	var dropped []int64
	h.OnDrop(func(s domain.Snapshot) { dropped = append(dropped, s.TaskID) })

	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(domain.Snapshot{TaskID: 1})
	h.Publish(domain.Snapshot{TaskID: 2})
	h.Publish(domain.Snapshot{TaskID: 3})

	got := <-ch
	assert.Equal(t, int64(3), got.TaskID)
	assert.Equal(t, []int64{1, 2}, dropped)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", extra)
	default:
	}
}

func TestCancelClosesChannel(t *testing.T) {
	h := New[domain.Snapshot](zerolog.Nop())
	ch, cancel := h.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	h.Publish(domain.Snapshot{TaskID: 9})
	last, seen := h.Last()
	require.True(t, seen)
	assert.Equal(t, int64(9), last.TaskID)
}

func TestCloseStopsDelivery(t *testing.T) {
	h := New[domain.Snapshot](zerolog.Nop())
	ch, cancel := h.Subscribe()
	defer cancel()
	h.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, lateCancel := h.Subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok)
}
