package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/celerix-dev/drinklog/internal/config"
	"github.com/celerix-dev/drinklog/internal/engine"
)

// New initializes the store based on the configuration.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(cfg *config.Client, logger *slog.Logger) (Store, error) {
	// 1. Check if a remote store is configured
	if cfg.StoreAddr != "" {
		client, err := Connect(cfg.StoreAddr, WithTLS(!cfg.DisableTLS), WithClientLogger(logger))
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = client.Ping(ctx)
			cancel()
			if err == nil {
				return client, nil
			}
			client.Close()
		}
		logger.Warn("remote store unreachable, using embedded store", "addr", cfg.StoreAddr, "error", err)
	}

	// 2. Fallback to embedded mode
	// This uses the same engine the server uses, but inside the app process.
	return OpenEmbedded(cfg.Storage, logger)
}

// OpenEmbedded loads the configured backend into a fresh MemStore.
func OpenEmbedded(cfg config.Storage, logger *slog.Logger, opts ...engine.Option) (*Embedded, error) {
	var (
		p       engine.Persister
		closers []func() error
	)
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := engine.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		p = db
		closers = append(closers, db.Close)
	case config.BackendJSON, "":
		jp, err := engine.NewPersistence(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		p = jp
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	allData, err := p.LoadAll()
	if err != nil {
		for _, c := range closers {
			c()
		}
		return nil, err
	}

	opts = append([]engine.Option{engine.WithLogger(logger)}, opts...)
	return NewEmbedded(engine.NewMemStore(allData, p, opts...), closers...), nil
}
