package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/celerix-dev/drinklog/internal/api"
	"github.com/celerix-dev/drinklog/internal/config"
	"github.com/celerix-dev/drinklog/internal/engine"
	"github.com/celerix-dev/drinklog/internal/logger"
	"github.com/celerix-dev/drinklog/internal/metrics"
	"github.com/celerix-dev/drinklog/internal/server"
	"github.com/celerix-dev/drinklog/internal/tracker"
	"github.com/celerix-dev/drinklog/internal/vault"
	"github.com/celerix-dev/drinklog/pkg/sdk"
)

func main() {
	// 1. Configuration
	cfg, err := config.LoadServer()
	if err != nil {
		logger.New("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	log.Info("starting drinklog store daemon", "data_dir", cfg.DataDir, "backend", cfg.Backend)

	// 2. Storage and engine
	m := metrics.NewStoreMetrics(prometheus.DefaultRegisterer)
	store, err := sdk.OpenEmbedded(cfg.Storage, log, engine.WithMetrics(m))
	if err != nil {
		log.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	log.Info("engine started", "collections", len(store.Engine().Collections()))

	// 3. TCP router
	router := server.NewRouter(store.Engine(), log)
	if !cfg.DisableTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			log.Error("failed to generate TLS certificate", "error", err)
			os.Exit(1)
		}
		router.SetCertificate(cert)
	} else {
		log.Warn("TLS encryption disabled (DRINKLOG_DISABLE_TLS=true)")
	}

	// 4. Drink log core, mirrored in process for the dashboard endpoints
	mirror := tracker.NewMirror(store, log)
	if err := mirror.Start(context.Background()); err != nil {
		log.Error("failed to mirror drinks", "error", err)
		os.Exit(1)
	}
	h := &api.Handler{
		Store:   store,
		Mirror:  mirror,
		Gateway: tracker.NewGateway(store, log),
		Metrics: m,
		Logger:  log.With("component", "http"),
	}
	httpServer := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(h, api.Options{
			WriteRate:  cfg.WriteRate,
			WriteBurst: cfg.WriteBurst,
			Gatherer:   prometheus.DefaultGatherer,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Start servers
	go func() {
		log.Info("http api listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 6. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received, finalizing disk writes")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
		router.Stop()
	}()

	// 7. TCP server, returns after Stop
	if err := router.Listen(cfg.Port); err != nil {
		log.Error("tcp server failed", "error", err)
		mirror.Close()
		store.Close()
		os.Exit(1)
	}
	mirror.Close()
	if err := store.Close(); err != nil {
		log.Error("failed to close storage", "error", err)
		os.Exit(1)
	}
	log.Info("persistence complete, exiting")
}
