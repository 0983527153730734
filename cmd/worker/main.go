package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/app"
	"github.com/hugh/gcp-inventory/internal/metrics"
	"github.com/hugh/gcp-inventory/internal/tasks"
	"github.com/hugh/gcp-inventory/pkg/config"
	"github.com/hugh/gcp-inventory/pkg/queue"
	"github.com/hugh/gcp-inventory/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "worker")
	slog.SetDefault(logger)

	logger.Info("starting inventory worker",
		"concurrency", cfg.Worker.Concurrency,
		"batch_size", cfg.Discovery.BatchSize,
		"pool_size", cfg.Discovery.PoolSize,
	)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Worker.Concurrency, logger)

	handler := tasks.NewHandler(a.DB, a.Coordinator, a.Runner, a.Queue, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	scheduler := queue.NewScheduler(&cfg.Redis)
	entryID, err := scheduler.Register(cfg.Discovery.ScheduleSpec, tasks.NewScheduleTask())
	if err != nil {
		logger.Error("failed to register schedule sweep", "spec", cfg.Discovery.ScheduleSpec, "error", err)
		os.Exit(1)
	}
	logger.Info("schedule sweep registered", "spec", cfg.Discovery.ScheduleSpec, "entry", entryID)

	metricsServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Worker.MetricsPort),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}
	if err := srv.Start(mux); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for tasks...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")

	scheduler.Shutdown()
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("worker stopped")
}
