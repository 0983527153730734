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

	"github.com/hugh/gcp-inventory/internal/api"
	"github.com/hugh/gcp-inventory/internal/app"
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

	logger := util.NewLogger(cfg.Server.Env, "server")
	slog.SetDefault(logger)

	logger.Info("starting inventory server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	inspector := queue.NewInspector(&cfg.Redis)

	router := api.NewRouter(api.RouterConfig{
		DB:             a.DB,
		Redis:          a.Redis,
		Logger:         logger,
		Store:          a.Store,
		Scans:          a.Coordinator,
		Enqueuer:       a.Queue,
		Inspector:      inspector,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := inspector.Close(); err != nil {
		logger.Warn("failed to close queue inspector", "error", err)
	}
	if err := a.Close(); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
