package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"inclusiveai-offline/internal/config"
	"inclusiveai-offline/internal/contentapi"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/manager"
	"inclusiveai-offline/internal/swcache"
	"inclusiveai-offline/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Agent failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)

	slog.Info("Starting offline agent", "remote", cfg.RemoteContentURL)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	client := contentapi.New(cfg.RemoteContentURL)
	cache := swcache.New(db, cfg.RemoteContentURL)

	// Activation purges caches left behind by older versions
	if err := cache.Activate(); err != nil {
		return fmt.Errorf("failed to activate cache layer: %w", err)
	}

	resourcesDir := filepath.Join(cfg.CacheDir, "resources")
	storage := manager.DiskEstimator{Path: cfg.CacheDir}
	contentManager := manager.New(db, client, cache, storage, resourcesDir, cfg.MaxSyncRetries)

	if err := contentManager.RecoverOrphans(); err != nil {
		slog.Error("Failed to recover orphaned downloads", "error", err)
	}

	return runServer(cfg, db, client, cache, contentManager, storage)
}

func runServer(cfg *config.Config, db *database.DB, client *contentapi.Client, cache *swcache.Cache, contentManager *manager.Manager, storage manager.StorageEstimator) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitorConnectivity(ctx, cfg, client, cache, contentManager)

	server := web.NewServer(cfg, contentManager, cache, storage)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	slog.Info("Agent shutdown complete")
	return nil
}

// monitorConnectivity polls the content server and drives online/offline
// transitions. The first transition online also installs the static shell.
func monitorConnectivity(ctx context.Context, cfg *config.Config, client *contentapi.Client, cache *swcache.Cache, contentManager *manager.Manager) {
	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	installed := false
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		online := client.Health(probeCtx) == nil
		contentManager.SetOnline(ctx, online)

		if online && !installed {
			if err := cache.Install(ctx); err != nil {
				slog.Warn("Static asset install failed", "error", err)
			} else {
				installed = true
			}
		}

		if online {
			if err := contentManager.FlushSyncQueue(ctx); err != nil {
				slog.Warn("Periodic sync flush failed", "error", err)
			}
		}
	}

	check()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Connectivity monitor shutting down")
			return
		case <-ticker.C:
			check()
		}
	}
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}
