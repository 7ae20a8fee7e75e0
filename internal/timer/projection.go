// Package timer projects engine snapshots into a once-per-second display
// value without touching the store on every tick.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tasktimer/internal/domain"
	"tasktimer/internal/hub"
)

type State int

const (
	Idle State = iota
	Seeded
	Ticking
)

func (s State) String() string {
	switch s {
	case Seeded:
		return "seeded"
	case Ticking:
		return "ticking"
	default:
		return "idle"
	}
}

// Tick is one display update.
type Tick struct {
	TaskID           int64           `json:"task_id"`
	TaskName         string          `json:"task_name"`
	Seconds          int64           `json:"seconds"`
	Running          bool            `json:"running"`
	// StartTime identifies the running session; zero when stopped.
	StartTime        time.Time       `json:"start_time,omitempty"`
	TimeLimitSeconds *int64          `json:"time_limit_seconds,omitempty"`
	Category         domain.Category `json:"category,omitempty"`
	At               time.Time       `json:"at"`
}

// Source reads the authoritative active snapshot.
type Source interface {
	Active(ctx context.Context) (domain.Snapshot, error)
}

// Feed streams snapshots as the engine commits them.
type Feed interface {
	Subscribe() (<-chan domain.Snapshot, func())
}

type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) Chan() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()                  { s.t.Stop() }

func NewStdTicker(d time.Duration) Ticker { return stdTicker{t: time.NewTicker(d)} }

type Options struct {
	Source            Source
	Feed              Feed
	TickInterval      time.Duration
	ReconcileInterval time.Duration
	Now               func() time.Time
	NewTicker         func(time.Duration) Ticker
	Log               zerolog.Logger
}

// Projection holds the seed of the running session and derives the display
// value from it locally.
type Projection struct {
	source    Source
	feed      Feed
	tickEvery time.Duration
	reconcile time.Duration
	now       func() time.Time
	newTicker func(time.Duration) Ticker
	log       zerolog.Logger
	out       *hub.Hub[Tick]

	mu       sync.Mutex
	parent   context.Context
	state    State
	seed     domain.Snapshot
	current  Tick
	gen      uint64
	stopTick context.CancelFunc
	wg       sync.WaitGroup
}

func New(opts Options) *Projection {
	p := &Projection{
		source:    opts.Source,
		feed:      opts.Feed,
		tickEvery: opts.TickInterval,
		reconcile: opts.ReconcileInterval,
		now:       opts.Now,
		newTicker: opts.NewTicker,
		log:       opts.Log,
		out:       hub.New[Tick](opts.Log),
		parent:    context.Background(),
	}
	if p.tickEvery <= 0 {
		p.tickEvery = time.Second
	}
	if p.reconcile <= 0 {
		p.reconcile = 5 * time.Second
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newTicker == nil {
		p.newTicker = NewStdTicker
	}
	return p
}

// Subscribe streams ticks latest-wins. The current tick is replayed first.
func (p *Projection) Subscribe() (<-chan Tick, func()) {
	return p.out.Subscribe()
}

func (p *Projection) Current() Tick {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Seed applies a snapshot. A running snapshot for the session already being
// ticked only refreshes task metadata; any other running snapshot restarts
// the clock. A stopped snapshot for the tracked task, or an idle one, stops
// the clock and freezes the display value.
func (p *Projection) Seed(s domain.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.Running {
		if p.state != Idle && p.seed.SameSession(s) && p.seed.BaseSeconds == s.BaseSeconds {
			p.seed.TaskName = s.TaskName
			p.seed.TimeLimitSeconds = s.TimeLimitSeconds
			p.seed.Category = s.Category
			p.current.TaskName = s.TaskName
			p.current.TimeLimitSeconds = s.TimeLimitSeconds
			p.current.Category = s.Category
			return
		}
		p.haltTickLocked()
		p.seed = s
		p.state = Seeded
		p.log.Debug().Int64("task_id", s.TaskID).Int64("base", s.BaseSeconds).Time("start", s.StartTime).Msg("projection seeded")
		p.emitLocked(p.tickFor(s, p.now(), 0))
		p.startTickLocked()
		return
	}

	tracked := p.current.TaskID
	switch {
	case s.TaskID != 0 && s.TaskID == tracked:
		p.haltTickLocked()
		p.seed = s
		p.state = Idle
		p.emitLocked(p.tickFor(s, p.now(), 0))
	case s.TaskID == 0 && p.state != Idle:
		p.haltTickLocked()
		final := p.current
		final.Running = false
		final.At = p.now()
		p.seed = domain.Snapshot{TaskID: final.TaskID, TaskName: final.TaskName, BaseSeconds: final.Seconds}
		p.state = Idle
		p.emitLocked(final)
	case tracked == 0 && s.TaskID != 0 && p.state == Idle:
		// first view of a stopped task
		p.seed = s
		p.emitLocked(p.tickFor(s, p.now(), 0))
	}
}

func (p *Projection) tickFor(s domain.Snapshot, now time.Time, floor int64) Tick {
	secs := s.DisplaySeconds(now)
	if secs < floor {
		secs = floor
	}
	if secs < 0 {
		secs = 0
	}
	return Tick{
		TaskID:           s.TaskID,
		TaskName:         s.TaskName,
		Seconds:          secs,
		Running:          s.Running,
		StartTime:        s.StartTime,
		TimeLimitSeconds: s.TimeLimitSeconds,
		Category:         s.Category,
		At:               now,
	}
}

func (p *Projection) emitLocked(t Tick) {
	p.current = t
	p.out.Publish(t)
}

func (p *Projection) startTickLocked() {
	ctx, cancel := context.WithCancel(p.parent)
	p.stopTick = cancel
	p.gen++
	gen := p.gen
	ticker := p.newTicker(p.tickEvery)
	p.state = Ticking
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				p.advance(gen)
			}
		}
	}()
}

func (p *Projection) haltTickLocked() {
	if p.stopTick != nil {
		p.stopTick()
		p.stopTick = nil
	}
	p.gen++
}

func (p *Projection) advance(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.state != Ticking {
		return
	}
	p.emitLocked(p.tickFor(p.seed, p.now(), p.current.Seconds))
}

// Reconcile re-reads the active snapshot from the source and seeds it.
func (p *Projection) Reconcile(ctx context.Context) {
	if p.source == nil {
		return
	}
	s, err := p.source.Active(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("reconcile active timer")
		return
	}
	p.Seed(s)
}

// Run follows the feed and reconciles periodically until ctx is done, then
// stops ticking and closes the tick stream.
func (p *Projection) Run(ctx context.Context) error {
	p.mu.Lock()
	p.parent = ctx
	p.mu.Unlock()
	defer p.shutdown()

	var snaps <-chan domain.Snapshot
	if p.feed != nil {
		ch, cancel := p.feed.Subscribe()
		defer cancel()
		snaps = ch
	}
	p.Reconcile(ctx)

	rt := p.newTicker(p.reconcile)
	defer rt.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			p.Seed(s)
		case <-rt.Chan():
			p.Reconcile(ctx)
		}
	}
}

func (p *Projection) shutdown() {
	p.mu.Lock()
	p.haltTickLocked()
	if p.state == Ticking {
		p.state = Seeded
	}
	p.mu.Unlock()
	p.wg.Wait()
	p.out.Close()
}
