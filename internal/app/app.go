// Package app wires the store, engine and runtime components for a workspace.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"tasktimer/internal/config"
	"tasktimer/internal/db"
	"tasktimer/internal/domain"
	"tasktimer/internal/engine"
	"tasktimer/internal/hub"
	"tasktimer/internal/logging"
	"tasktimer/internal/migrate"
	"tasktimer/internal/notify"
	"tasktimer/internal/surface"
	"tasktimer/internal/timer"
	"tasktimer/internal/workspace"
)

// ResolveConfig loads the workspace config and overlays flags and env from v.
func ResolveConfig(ws string, v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v != nil {
		if err := cfg.Overlay(v); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return cfg, nil
}

// App is an opened workspace.
type App struct {
	Config     *config.Config
	DB         *sql.DB
	Engine     engine.Engine
	Snapshots  *hub.Hub[domain.Snapshot]
	Projection *timer.Projection
	Surface    *surface.Sync
	Watcher    *notify.Watcher
	Pusher     *workspace.Pusher
	Log        zerolog.Logger

	active *ActiveReader
}

// Open opens and migrates the workspace database and builds every
// component. Nothing runs until Run.
func Open(ctx context.Context, ws string, cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: ws})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	a := &App{
		Config:    cfg,
		DB:        conn,
		Log:       logging.Component("app"),
		Snapshots: hub.New[domain.Snapshot](logging.Component("hub")),
	}
	a.Snapshots.OnDrop(func(s domain.Snapshot) {
		a.Log.Debug().Int64("task_id", s.TaskID).Bool("running", s.Running).Msg("snapshot superseded before delivery")
	})
	a.Engine = engine.New(conn)
	a.Engine.Log = logging.Component("engine")
	a.Engine.Hub = a.Snapshots
	if cfg.Sync.URL != "" {
		a.Pusher = workspace.NewPusher(workspace.Options{
			URL:     cfg.Sync.URL,
			Token:   cfg.Sync.Token,
			Timeout: cfg.Sync.Timeout,
			Log:     logging.Component("workspace"),
		})
		a.Engine.Sync = a.Pusher
	} else {
		a.Engine.Sync = workspace.Noop{}
	}

	a.active = &ActiveReader{Engine: a.Engine}
	a.Projection = timer.New(timer.Options{
		Source:            a.active,
		Feed:              a.Snapshots,
		TickInterval:      cfg.Timer.TickInterval,
		ReconcileInterval: cfg.Timer.ReconcileInterval,
		Log:               logging.Component("timer"),
	})
	a.Surface = surface.New(surface.Options{
		Stopper: a.Engine,
		Log:     logging.Component("surface"),
	})
	if cfg.Notify.Enabled {
		a.Watcher = notify.NewWatcher(notify.WatcherOptions{
			Notifier:   notify.NewDebounced(notify.LogNotifier{Log: logging.Component("notify")}, cfg.Notify.Debounce),
			NudgeAfter: cfg.Notify.LeakNudgeAfter,
			NudgeEvery: cfg.Notify.LeakNudgeEvery,
			Log:        logging.Component("notify"),
		})
	}
	a.Log.Debug().Str("db", db.Path(ws)).Msg("workspace opened")
	return a, nil
}

// Active returns the running snapshot; concurrent callers share one read.
func (a *App) Active(ctx context.Context) (domain.Snapshot, error) {
	return a.active.Active(ctx)
}

// Run drives the projection, the surface sync and the notification watcher
// until ctx is canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Projection.Run(ctx) })
	g.Go(func() error { return a.Surface.Run(ctx, a.Projection) })
	if a.Watcher != nil {
		g.Go(func() error { return a.Watcher.Run(ctx, a.Projection) })
	}
	g.Go(func() error { return a.followPrimary(ctx) })
	a.Log.Debug().Bool("notify", a.Watcher != nil).Bool("sync", a.Pusher != nil).Msg("runtime started")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// followPrimary records controls raised by the secondary surface.
func (a *App) followPrimary(ctx context.Context) error {
	ch, cancel := a.Surface.Primary()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if m.Kind == surface.KindStopped {
				a.Log.Info().Int64("task_id", m.Stopped.TaskID).Int64("total_seconds", m.Stopped.TotalSeconds).Msg("timer stopped from float")
			}
		}
	}
}

// Close flushes pending workspace pushes and closes the store.
func (a *App) Close() error {
	a.Snapshots.Close()
	if a.Pusher != nil {
		a.Pusher.Wait()
	}
	return a.DB.Close()
}

// ActiveReader coalesces concurrent reads of the active snapshot, such as a
// reconciliation pass racing HTTP polls.
type ActiveReader struct {
	Engine engine.Engine
	group  singleflight.Group
}

func (r *ActiveReader) Active(ctx context.Context) (domain.Snapshot, error) {
	// shared by every waiting caller, so one caller's cancel must not fail the rest
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do("active", func() (any, error) {
		return r.Engine.Active(shared)
	})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return v.(domain.Snapshot), nil
}
