// Kestrel - Money-muling network detection.
// Copyright (c) 2025 kestrelhq
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"

	"github.com/kestrelhq/kestrel/internal/api"
	"github.com/kestrelhq/kestrel/internal/bus"
	"github.com/kestrelhq/kestrel/internal/cache"
	"github.com/kestrelhq/kestrel/internal/domain"
	"github.com/kestrelhq/kestrel/internal/engine"
	"github.com/kestrelhq/kestrel/internal/repository"
	"github.com/kestrelhq/kestrel/internal/rules"
	"github.com/kestrelhq/kestrel/internal/worker"
)

const envPrefix = "KESTREL"

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := run(); err != nil {
		slog.Error("kestrel exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := *domain.DefaultConfig()
	if err := conf.Parse(os.Args[1:], envPrefix, &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, usageErr := conf.Usage(envPrefix, &cfg)
			if usageErr != nil {
				return fmt.Errorf("generating config usage: %w", usageErr)
			}
			fmt.Println(usage)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	setupLogging(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"async_worker", cfg.Upload.AsyncWorker,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initializing repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initializing event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	alertEngine, err := rules.NewEngine()
	if err != nil {
		return fmt.Errorf("initializing alert rule engine: %w", err)
	}
	defer alertEngine.Close()

	if err := loadAlertRules(ctx, repo, alertEngine); err != nil {
		return fmt.Errorf("loading alert rules: %w", err)
	}
	slog.Info("alert rule engine initialized", "rules_count", alertEngine.RulesCount())

	detectionEngine := engine.New(cfg.Detection)
	runner := worker.NewWorker(busImpl, repo, detectionEngine, alertEngine)

	if cfg.Upload.AsyncWorker {
		if err := runner.Start(); err != nil {
			return fmt.Errorf("starting async worker: %w", err)
		}
		defer runner.Stop()
	}

	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, runner, alertEngine, cfg.Upload, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
	return nil
}

func setupLogging(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

// loadAlertRules loads persisted rules into the engine, falling back
// to the builtin set when the database has none.
func loadAlertRules(ctx context.Context, repo domain.Repository, alertEngine *rules.Engine) error {
	dbRules, err := repo.ListAlertRules(ctx)
	if err != nil {
		slog.Warn("failed to list alert rules from database", "error", err)
		dbRules = nil
	}

	if len(dbRules) > 0 {
		slog.Info("loading alert rules from database", "count", len(dbRules))
		return alertEngine.LoadRules(dbRules)
	}

	slog.Info("no alert rules in database, loading builtin rules")
	return alertEngine.LoadRules(rules.BuiltinRules())
}
