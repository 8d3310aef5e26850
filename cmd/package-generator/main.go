package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"inclusiveai-offline/internal/adapter"
	"inclusiveai-offline/internal/assembler"
	"inclusiveai-offline/internal/batch"
	"inclusiveai-offline/internal/config"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/optimizer"
	"inclusiveai-offline/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Package generation failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	setupLogging(cfg.LogLevel)

	slog.Info("Starting offline package generator", "version", assembler.PackageVersion)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	// Scratch downloads live under the temp dir for the whole run
	defer func() {
		if err := os.RemoveAll(cfg.TempDir); err != nil {
			slog.Warn("Failed to clean temp directory", "path", cfg.TempDir, "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resourceOptimizer := optimizer.New(optimizer.Options{
		TempDir:        cfg.TempDir,
		ResourcesDir:   cfg.ContentDir + "/resources",
		MaxImageWidth:  cfg.MaxImageWidth,
		MaxImageHeight: cfg.MaxImageHeight,
		JPEGQuality:    cfg.JPEGQuality,
		AudioBitrate:   cfg.AudioBitrate,
		VideoBitrate:   cfg.VideoBitrate,
		CommandTimeout: cfg.CommandTimeout,
	}, optimizer.ExecRunner{})

	packageStore := store.New(cfg.ContentDir, db)
	lessonAdapter := adapter.New(db)
	packageAssembler := assembler.New(db, lessonAdapter, resourceOptimizer, packageStore)

	driver := batch.New(db, packageAssembler, packageStore, batch.Config{
		Delay:     cfg.BatchDelay,
		OutputDir: cfg.ContentDir,
	})

	report, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("batch generation failed: %w", err)
	}

	slog.Info("Generation report written",
		"path", cfg.ContentDir+"/"+batch.ReportFilename,
		"success_rate", fmt.Sprintf("%.1f%%", report.Summary.SuccessRate))

	return nil
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
