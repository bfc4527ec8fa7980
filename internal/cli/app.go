package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/celerix-dev/drinklog/internal/config"
	"github.com/celerix-dev/drinklog/internal/logger"
	"github.com/celerix-dev/drinklog/internal/prefs"
	"github.com/celerix-dev/drinklog/internal/tracker"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

// App is the per-invocation wiring of the tracker core.
type App struct {
	Store   sdk.Store
	Session *tracker.Session
	Gateway *tracker.Gateway
	Notice  *tracker.Notice
	Logger  *slog.Logger

	ownsStore bool
	started   bool
}

// NewApp wires a session, mirror and gateway over store. kv holds the local
// identity. The store stays open when the app is closed.
func NewApp(store sdk.Store, kv sdk.KVStore, log *slog.Logger, loc *time.Location) (*App, error) {
	mirror := tracker.NewMirror(store, log)
	notice := tracker.NewNotice(nil, 0)
	session, err := tracker.NewSession(kv, mirror, notice)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to read preferences", err)
	}
	return &App{
		Store:   store,
		Session: session,
		Gateway: tracker.NewGateway(store, log, tracker.WithLocation(loc), tracker.WithNotice(notice)),
		Notice:  notice,
		Logger:  log,
	}, nil
}

// Ready starts the mirror and waits for its first snapshot.
func (a *App) Ready(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true
	m := a.Session.Mirror()
	if err := m.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "cannot reach the drink log", err)
	}
	if err := m.WaitReady(ctx); err != nil {
		return WrapExitError(ExitFailure, "cannot reach the drink log", err)
	}
	return nil
}

// Close stops the mirror, and the store when the app opened it.
func (a *App) Close() error {
	a.Session.Mirror().Close()
	if a.ownsStore {
		return a.Store.Close()
	}
	return nil
}

// openApp connects to the configured store daemon or falls back to the local
// database.
func openApp(_ context.Context, opts *RootOptions) (*App, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	log := logger.New(level)

	store, err := sdk.New(cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open store", err)
	}
	app, err := NewApp(store, prefs.Open(cfg.PrefsPath), log, time.Local)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.ownsStore = true
	return app, nil
}
