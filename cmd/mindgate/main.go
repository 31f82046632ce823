package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mindgate/mindgate/internal/config"
	"github.com/mindgate/mindgate/internal/expiry"
	"github.com/mindgate/mindgate/internal/gate"
	"github.com/mindgate/mindgate/internal/httpapi"
	"github.com/mindgate/mindgate/internal/hub"
	"github.com/mindgate/mindgate/internal/observability"
	"github.com/mindgate/mindgate/internal/router"
	"github.com/mindgate/mindgate/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := state.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("state store init failed: %v", err)
	}
	defer store.Close()

	tabHub := hub.New(cfg.TabQueryTimeout, logger)
	timer := expiry.NewTimer()
	defer timer.Clear()

	core := gate.NewManager(store, tabHub, tabHub, timer, gate.Config{
		MonitoredHosts:       cfg.MonitoredHosts,
		MonitoredURLPatterns: cfg.MonitoredURLPatterns,
		InterventionURL:      cfg.InterventionURL,
		MaxSessionMinutes:    cfg.MaxSessionMinutes,
	}, metrics, logger)

	if err := core.Bootstrap(ctx); err != nil {
		log.Fatalf("state bootstrap failed: %v", err)
	}
	if err := core.RearmExpiry(ctx); err != nil {
		log.Fatalf("expiry rearm failed: %v", err)
	}

	rt := router.New(core, metrics, logger)
	api := httpapi.New(cfg, core, rt, tabHub, metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr, "monitored_hosts", cfg.MonitoredHosts)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
