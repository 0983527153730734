// Package app wires the discovery pipeline for the server, worker and CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/gcp-inventory/internal/database"
	"github.com/hugh/gcp-inventory/internal/discovery"
	"github.com/hugh/gcp-inventory/internal/gcp"
	"github.com/hugh/gcp-inventory/internal/progress"
	"github.com/hugh/gcp-inventory/internal/tasks"
	"github.com/hugh/gcp-inventory/pkg/config"
	"github.com/hugh/gcp-inventory/pkg/crypto"
	"github.com/hugh/gcp-inventory/pkg/queue"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *gorm.DB
	Redis     *redis.Client
	Queue     *asynq.Client
	Encryptor *crypto.Encryptor
	Store     progress.Store

	Coordinator *discovery.Coordinator
	Finalizer   *discovery.Finalizer
	Runner      *discovery.BatchRunner
}

// New connects to Postgres and Redis and builds the pipeline. Redis is
// required: without it batches cannot be queued or counted.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	encryptor, err := crypto.NewEncryptor(cfg.Encryption.Key)
	if err != nil {
		closeDB(db)
		_ = rdb.Close()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - stored service accounts will be unreadable after restart")
	}

	d := cfg.Discovery
	store := progress.NewRedisStore(rdb, d.ProgressTTL())
	creds := gcp.NewAuthenticator(encryptor, gcp.ClientOptions{
		RequestTimeout:    d.RequestTimeout(),
		RequestsPerSecond: d.APIRequestsPerSecond,
		Burst:             d.APIBurst,
	}, logger)
	client := queue.NewClient(&cfg.Redis)

	finalizer := discovery.NewFinalizer(db, store, logger)
	scanner := discovery.NewScanner(db, d.ServiceCacheTTL(), logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		DB:          db,
		Redis:       rdb,
		Queue:       client,
		Encryptor:   encryptor,
		Store:       store,
		Coordinator: discovery.NewCoordinator(db, store, creds, tasks.NewDispatcher(client, d.BatchTimeout()), finalizer, d, logger),
		Finalizer:   finalizer,
		Runner:      discovery.NewBatchRunner(db, store, creds, scanner, finalizer, d.PoolSize, logger),
	}, nil
}

func (a *App) Close() error {
	var errs []error
	if err := a.Queue.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing queue client: %w", err))
	}
	if err := a.Redis.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing redis: %w", err))
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
