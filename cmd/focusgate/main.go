package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focusgate/config"
	"focusgate/internal/api"
	"focusgate/internal/core"
	"focusgate/internal/logging"
	"focusgate/internal/metrics"
	"focusgate/internal/restriction"
	"focusgate/internal/restriction/passive"
	"focusgate/internal/restriction/webhook"
	"focusgate/internal/scheduler"
	"focusgate/internal/snapshot"
	"focusgate/internal/storage/sqlite"
	"focusgate/internal/strategy"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (.json, .yaml or .yml)")
	useEnv := flag.Bool("env", false, "Load configuration from FOCUSGATE_* environment variables")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: cfg.Logging.Format,
		Level:  logging.ParseLevel(cfg.Logging.Level),
	})
	slog.SetDefault(logger)
	logger.Info("Starting focusgate", "version", version)

	location, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	logger.Info("Initializing SQLite database", "path", cfg.Database.Path)
	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	logger.Info("Opening snapshot store", "dir", cfg.Snapshot.Dir)
	kv, err := snapshot.NewFileKV(cfg.Snapshot.Dir)
	if err != nil {
		return fmt.Errorf("failed to open snapshot store: %w", err)
	}
	snapshots := snapshot.NewStore(kv, logger, snapshot.WithMaxCompleted(cfg.Snapshot.MaxCompleted))

	authority, err := setupRestrictions(cfg.Restriction, logger)
	if err != nil {
		return err
	}

	m := metrics.New()

	quota := core.NewQuotaService(db, core.QuotaConfig{
		Allowance: cfg.Engine.EmergencyAllowance,
		Period:    cfg.Engine.QuotaPeriod.Std(),
		Timezone:  location,
	}, nil, logger)

	engine := core.NewEngine(core.EngineConfig{
		Profiles:     db,
		Strategies:   strategy.NewDefaultRegistry(logger),
		Archive:      db,
		Snapshots:    snapshots,
		Quota:        quota,
		Restrictions: authority,
		Metrics:      m,
		Logger:       logger,
		TickInterval: cfg.Engine.TickInterval.Std(),
	})
	defer engine.Shutdown()
	sessions := logging.NewEngineLogger(engine, logger)

	profiles := core.NewProfileService(db, snapshots, engine, nil, logger)

	ctx := context.Background()
	if _, err := sessions.Restore(ctx); err != nil {
		logger.Error("Failed to restore active session, continuing idle", "error", err)
	}

	reconciler := scheduler.NewReconciler(scheduler.Config{
		Engine:    sessions,
		Profiles:  db,
		Durable:   db,
		Completed: snapshots,
		Schedule:  core.NewScheduleService(location),
		Quota:     quota,
		Snapshots: profiles,
		Metrics:   m,
		Interval:  cfg.Schedule.ReconcileInterval.Std(),
		Logger:    logger,
	})
	go reconciler.Start()

	router := api.NewRouter(api.RouterConfig{
		Engine:     sessions,
		Profiles:   profiles,
		History:    db,
		Quota:      quota,
		Reconciler: reconciler,
		Metrics:    m.Handler(),
		APIKey:     cfg.Security.APIKey,
		Version:    version,
		Logger:     logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// wakes touch the database, so the loop must be gone before db.Close
	stopReconciler := func() {
		reconciler.Stop()
		<-reconciler.Done()
	}

	select {
	case err := <-serverErrors:
		stopReconciler()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("Starting graceful shutdown", "signal", sig.String())

		stopReconciler()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		// the active session stays in the shared slot and is adopted on next launch
		if err := sessions.Flush(shutdownCtx); err != nil {
			logger.Warn("Snapshot writes still pending at shutdown", "error", err)
		}

		logger.Info("Graceful shutdown complete")
	}

	return nil
}

// setupRestrictions registers the available authorities and returns the
// configured one
func setupRestrictions(cfg config.RestrictionConfig, logger *slog.Logger) (core.RestrictionAuthority, error) {
	registry := restriction.NewRegistry()
	if err := registry.Register(passive.New(logger)); err != nil {
		return nil, err
	}
	if cfg.Webhook.URL != "" {
		hook := webhook.New(webhook.Config{
			URL:      cfg.Webhook.URL,
			APIKey:   cfg.Webhook.APIKey,
			Timeout:  cfg.Webhook.Timeout.Std(),
			RetryMax: cfg.Webhook.RetryMax,
		}, logger)
		if err := registry.Register(hook); err != nil {
			return nil, err
		}
	}

	authority, err := registry.Get(cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("failed to select restriction authority: %w", err)
	}
	logger.Info("Restriction authority selected", "authority", authority.Name(), "available", registry.List())
	return authority, nil
}
