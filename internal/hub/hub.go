// Package hub fans values out to in-process subscribers: engine snapshots to
// timer projections, projection ticks to watchers and float streams.
package hub

import (
	"sync"

	"github.com/rs/zerolog"
)

// Hub delivers values latest-wins: a slow subscriber only ever sees the
// newest value, older undelivered ones are replaced.
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	next   uint64
	last   T
	seen   bool
	closed bool
	log    zerolog.Logger
	onDrop []func(T)
}

func New[T any](log zerolog.Logger) *Hub[T] {
	return &Hub[T]{
		subs: make(map[uint64]chan T),
		log:  log,
	}
}

// OnDrop registers a hook fired when an undelivered value is replaced.
func (h *Hub[T]) OnDrop(fn func(T)) {
	h.mu.Lock()
	h.onDrop = append(h.onDrop, fn)
	h.mu.Unlock()
}

// Subscribe returns a channel of values and a cancel func. The last
// published value, if any, is delivered first.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan T, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch
	if h.seen {
		ch <- h.last
	}
	h.log.Debug().Uint64("sub", id).Int("subs", len(h.subs)).Msg("subscriber registered")

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish hands s to every subscriber without blocking.
func (h *Hub[T]) Publish(s T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = s
	h.seen = true
	for _, ch := range h.subs {
		select {
		case ch <- s:
			continue
		default:
		}
		select {
		case old := <-ch:
			for _, fn := range h.onDrop {
				fn(old)
			}
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Last returns the most recently published value.
func (h *Hub[T]) Last() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.seen
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.log.Debug().Msg("hub closed")
}
