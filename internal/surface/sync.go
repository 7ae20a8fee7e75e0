package surface

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
	"tasktimer/internal/hub"
	"tasktimer/internal/timer"
)

// ErrStaleGeneration rejects a request stamped by a secondary that has
// since been cleared.
var ErrStaleGeneration = errors.New("stale surface generation")

// Stopper stops a task's timer; the engine satisfies it.
type Stopper interface {
	Stop(ctx context.Context, id int64) (domain.Snapshot, error)
}

// TickSource streams projection ticks.
type TickSource interface {
	Subscribe() (<-chan timer.Tick, func())
}

type Options struct {
	Stopper Stopper
	Log     zerolog.Logger
	// NewGeneration defaults to random UUIDs.
	NewGeneration func() string
}

// Sync owns the secondary surface. Each Clear destroys the secondary and
// creates a fresh one under a new generation; anything stamped for an older
// generation is dropped on delivery. Ticks are fenced by their session, so a
// tick produced before a clear never reaches the recreated secondary.
type Sync struct {
	stopper Stopper
	log     zerolog.Logger
	newGen  func() string

	secondary *hub.Hub[Message]
	primary   *hub.Hub[Message]

	mu         sync.Mutex
	generation string
	visible    bool
	viewers    int
	active     bool
	pending    *Message
	dropped    int
	last       timer.Tick
	fence      *fence
}

// fence marks ticks that predate the latest clear.
type fence struct {
	taskID int64
	// known is set when the cleared session's start was observed.
	known bool
	start time.Time
	// ended sessions never show again; live ones only past through.
	ended   bool
	through int64
	// before applies when the session is unknown: sessions of taskID that
	// started before it are stale. Zero fences every session of taskID.
	before time.Time
}

func (f *fence) holds(t timer.Tick) bool {
	if f == nil || t.TaskID != f.taskID {
		return false
	}
	if f.known {
		if !t.StartTime.Equal(f.start) {
			return false
		}
		return f.ended || t.Seconds <= f.through
	}
	return f.before.IsZero() || t.StartTime.Before(f.before)
}

func New(opts Options) *Sync {
	s := &Sync{
		stopper:   opts.Stopper,
		log:       opts.Log,
		newGen:    opts.NewGeneration,
		secondary: hub.New[Message](opts.Log),
		primary:   hub.New[Message](opts.Log),
	}
	if s.newGen == nil {
		s.newGen = func() string { return uuid.NewString() }
	}
	s.generation = s.newGen()
	return s
}

// Generation returns the live secondary's generation.
func (s *Sync) Generation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Primary streams messages for the primary surface, such as a stop issued
// from the secondary.
func (s *Sync) Primary() (<-chan Message, func()) {
	return s.primary.Subscribe()
}

// Dropped counts messages rejected for carrying a stale generation.
func (s *Sync) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Stamp builds a publish message for the live generation without sending it.
func (s *Sync) Stamp(p PublishPayload) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Message{Version: Version, Kind: KindPublish, Generation: s.generation, Publish: &p}
}

// Publish sends p to the secondary. While hidden only the latest publish is
// kept and delivered on Show.
func (s *Sync) Publish(p PublishPayload) {
	s.Deliver(s.Stamp(p))
}

// Deliver hands a stamped message to the secondary. It reports false when
// the message is invalid or was stamped for a generation that no longer
// exists.
func (s *Sync) Deliver(m Message) bool {
	if err := m.Validate(); err != nil {
		s.log.Warn().Err(err).Msg("rejecting surface message")
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliverLocked(m)
}

func (s *Sync) deliverLocked(m Message) bool {
	if m.Generation != s.generation {
		s.dropped++
		s.log.Debug().Str("generation", m.Generation).Str("live", s.generation).Msg("dropping stale surface message")
		return false
	}
	if m.Kind == KindPublish {
		s.active = true
		if !s.visible {
			s.pending = &m
			return true
		}
	}
	s.secondary.Publish(m)
	return true
}

// Attach subscribes a secondary display and shows the surface; the
// buffered publish, if any, is delivered to it. The surface is hidden again
// when the last attached display detaches.
func (s *Sync) Attach() (<-chan Message, func()) {
	ch, cancel := s.secondary.Subscribe()
	s.mu.Lock()
	s.viewers++
	s.showLocked()
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			s.viewers--
			if s.viewers == 0 {
				s.visible = false
			}
			s.mu.Unlock()
		})
	}
}

// Show makes the secondary visible and flushes the buffered publish.
func (s *Sync) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showLocked()
}

func (s *Sync) showLocked() {
	s.visible = true
	if s.pending != nil {
		if s.pending.Generation == s.generation {
			s.secondary.Publish(*s.pending)
		}
		s.pending = nil
	}
}

func (s *Sync) Hide() {
	s.mu.Lock()
	s.visible = false
	s.mu.Unlock()
}

func (s *Sync) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Clear destroys the secondary and recreates it under a new generation.
// Ticks of the displayed session up to the last shown value are fenced off.
func (s *Sync) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last.TaskID != 0 {
		s.fence = &fence{taskID: s.last.TaskID, known: true, start: s.last.StartTime, through: s.last.Seconds}
	}
	s.clearLocked()
}

func (s *Sync) clearLocked() {
	old := s.generation
	s.generation = s.newGen()
	s.pending = nil
	s.active = false
	s.secondary.Publish(Message{Version: Version, Kind: KindClear, Generation: s.generation})
	s.log.Debug().Str("old", old).Str("generation", s.generation).Msg("secondary recreated")
}

// StopFromSecondary stops the task on behalf of the secondary surface,
// tells the primary, and clears the secondary.
func (s *Sync) StopFromSecondary(ctx context.Context, taskID int64) (domain.Snapshot, error) {
	snap, err := s.stopper.Stop(ctx, taskID)
	if err != nil {
		return snap, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active && s.last.TaskID == taskID && !s.last.StartTime.IsZero() {
		s.fence = &fence{taskID: taskID, known: true, start: s.last.StartTime, ended: true}
	} else {
		s.fence = &fence{taskID: taskID, before: snap.TakenAt}
	}
	s.primary.Publish(Message{
		Version:    Version,
		Kind:       KindStopped,
		Generation: s.generation,
		Stopped:    &StoppedPayload{TaskID: snap.TaskID, TotalSeconds: snap.BaseSeconds},
	})
	s.clearLocked()
	return snap, nil
}

// StopGeneration is StopFromSecondary for a request stamped with generation.
func (s *Sync) StopGeneration(ctx context.Context, generation string, taskID int64) (domain.Snapshot, error) {
	s.mu.Lock()
	if generation != s.generation {
		s.dropped++
		s.mu.Unlock()
		return domain.Snapshot{}, ErrStaleGeneration
	}
	s.mu.Unlock()
	return s.StopFromSecondary(ctx, taskID)
}

// Run mirrors projection ticks onto the secondary until ctx is done or the
// tick stream closes.
func (s *Sync) Run(ctx context.Context, ticks TickSource) error {
	ch, cancel := ticks.Subscribe()
	defer cancel()
	defer s.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ch:
			if !ok {
				return nil
			}
			s.Follow(t)
		}
	}
}

// Follow applies one tick: running ticks publish, a stop clears. Running
// ticks held by the fence of an earlier clear are dropped.
func (s *Sync) Follow(t timer.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.Running {
		if s.fence != nil && s.fence.taskID == t.TaskID {
			s.fence = nil
		}
		if s.active {
			s.clearLocked()
		}
		return
	}
	if s.fence.holds(t) {
		s.dropped++
		s.log.Debug().Int64("task_id", t.TaskID).Int64("seconds", t.Seconds).Msg("dropping tick from before clear")
		return
	}
	if s.fence != nil && s.fence.taskID == t.TaskID {
		s.fence = nil
	}
	s.last = t
	p := PublishPayload{TaskID: t.TaskID, TaskName: t.TaskName, Seconds: t.Seconds}
	s.deliverLocked(Message{Version: Version, Kind: KindPublish, Generation: s.generation, Publish: &p})
}

// Close ends every stream.
func (s *Sync) Close() {
	s.secondary.Close()
	s.primary.Close()
}
