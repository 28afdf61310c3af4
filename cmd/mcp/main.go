package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	mcpadapter "github.com/kirillkom/collision-estimator/internal/adapters/mcp"
	"github.com/kirillkom/collision-estimator/internal/bootstrap"
	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/observability/logging"
)

// Stdout carries the MCP protocol; logs go to stderr.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if _, err := app.Rebuild(ctx, bootstrap.OriginStartup); err != nil {
		logger.Error("initial index build failed", "error", err)
	}
	if err := app.StartWatcher(ctx); err != nil {
		logger.Error("corpus watcher error", "error", err)
	}
	go func() {
		if err := app.SubscribeReindex(ctx); err != nil {
			logger.Error("reindex subscription error", "error", err)
		}
	}()

	server := mcpadapter.NewServer(app.Estimator, app.Retriever, app.Indexer)
	if err := server.Serve(); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
