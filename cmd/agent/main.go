package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/imedwei/b2-backup-agent/internal/agent"
	"github.com/imedwei/b2-backup-agent/internal/config"
	"github.com/imedwei/b2-backup-agent/internal/health"
	"github.com/imedwei/b2-backup-agent/internal/metrics"
	"github.com/imedwei/b2-backup-agent/internal/server"
	"github.com/imedwei/b2-backup-agent/internal/storage"
)

const version = "dev"

func main() {
	// Set up logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("B2 Backup Agent starting")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Log configuration (without sensitive data)
	logger.Info("Configuration loaded",
		"storage_provider", cfg.StorageProvider,
		"bucket", cfg.Bucket,
		"prefix", cfg.Prefix,
		"metrics_port", cfg.MetricsPort,
	)
	metrics.Info.WithLabelValues(version, cfg.StorageProvider).Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create storage provider
	store, err := storage.NewStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to create storage provider", "error", err)
		os.Exit(1)
	}

	backupAgent := agent.New(store, cfg.Prefix, logger)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.MetricsPort
	httpServer := server.New(serverConfig, backupAgent, logger)
	httpServer.RegisterHealthCheck("storage", health.StoreCheck(store, cfg.Prefix))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("B2 Backup Agent stopped")
}
