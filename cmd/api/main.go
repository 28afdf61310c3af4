package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/kirillkom/collision-estimator/internal/adapters/http"
	"github.com/kirillkom/collision-estimator/internal/bootstrap"
	"github.com/kirillkom/collision-estimator/internal/config"
	"github.com/kirillkom/collision-estimator/internal/infrastructure/schema"
	"github.com/kirillkom/collision-estimator/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	logger.Info("starting", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Failures leave the index absent; estimates degrade to general knowledge.
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

	router := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Estimator:   app.Estimator,
		Indexer:     app.IndexerFor(bootstrap.OriginHTTP),
		Estimates:   app.Estimates,
		Metrics:     app.HTTPMetrics,
		Logger:      logger,
		APIDocument: schema.Document(),
	}).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
