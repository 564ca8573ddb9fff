// Package app wires configuration, storage, the platform client and the
// servers into one runnable unit.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/outreach/internal/abtest"
	"github.com/foxzi/outreach/internal/api"
	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/config"
	"github.com/foxzi/outreach/internal/copygen"
	"github.com/foxzi/outreach/internal/instantly"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/syncer"
)

// App is the main application
type App struct {
	config        *config.Config
	logger        *slog.Logger
	testsDB       *sql.DB
	syncDB        *bolt.DB
	store         *abtest.Store
	client        *instantly.Client
	coordinator   *syncer.Coordinator
	orchestrator  *campaign.Orchestrator
	apiServer     *api.Server
	metricsServer *metrics.Server
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := SetupLogger(cfg.Logging)

	m := metrics.New()
	metrics.SetGlobal(m)

	testsDB, err := abtest.Open(cfg.Storage.TestsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open tests database: %w", err)
	}
	store := abtest.NewStore(testsDB)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SyncPath), 0755); err != nil {
		testsDB.Close()
		return nil, fmt.Errorf("failed to create sync database directory: %w", err)
	}
	syncDB, err := bolt.Open(cfg.Storage.SyncPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		testsDB.Close()
		return nil, fmt.Errorf("failed to open sync database: %w", err)
	}

	client := instantly.New(instantly.Config{
		APIKey:             cfg.Instantly.APIKey,
		BaseURL:            cfg.Instantly.BaseURL,
		MaxRetries:         cfg.Instantly.MaxRetries,
		MinRequestInterval: cfg.Instantly.MinRequestInterval,
	})

	coordinator, err := syncer.New(client, store, syncDB, logger.With("component", "syncer"))
	if err != nil {
		testsDB.Close()
		syncDB.Close()
		return nil, fmt.Errorf("failed to create sync coordinator: %w", err)
	}

	generator := copygen.New(copygen.Config{
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM API key not configured, copy generation will fail")
	}

	orchestrator := campaign.New(generator, store, client, logger.With("component", "campaign"))

	apiServer := api.NewServer(store, coordinator, orchestrator, &cfg.API, logger.With("component", "api"))

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger.With("component", "metrics"))
	}

	return &App{
		config:        cfg,
		logger:        logger,
		testsDB:       testsDB,
		syncDB:        syncDB,
		store:         store,
		client:        client,
		coordinator:   coordinator,
		orchestrator:  orchestrator,
		apiServer:     apiServer,
		metricsServer: metricsServer,
	}, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting outreach",
		"api_addr", a.config.API.ListenAddr,
		"sync_interval", a.config.Sync.Interval,
		"metrics_enabled", a.config.Metrics.Enabled,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	if a.config.Sync.Interval > 0 {
		go a.syncLoop(ctx)
	} else {
		a.logger.Info("background sync disabled")
	}

	a.updateRunningTests()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// syncLoop periodically syncs engagement for every registered campaign.
func (a *App) syncLoop(ctx context.Context) {
	a.logger.Info("background sync enabled", "interval", a.config.Sync.Interval)

	ticker := time.NewTicker(a.config.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.coordinator.SyncRegistered(ctx); err != nil {
				a.logger.Error("background sync error", "error", err)
			}
			a.updateRunningTests()
		}
	}
}

func (a *App) updateRunningTests() {
	m := metrics.Global()
	if m == nil {
		return
	}

	tests, err := a.store.ListTests()
	if err != nil {
		return
	}
	running := 0
	for _, t := range tests {
		if t.Status == abtest.StatusRunning {
			running++
		}
	}
	m.TestsRunning.Set(float64(running))
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := a.syncDB.Close(); err != nil {
		a.logger.Error("sync database close error", "error", err)
	}
	if err := a.testsDB.Close(); err != nil {
		a.logger.Error("tests database close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
