package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/hugh/gcp-inventory/internal/app"
	"github.com/hugh/gcp-inventory/internal/database"
	"github.com/hugh/gcp-inventory/internal/database/models"
	"github.com/hugh/gcp-inventory/pkg/config"
	"github.com/hugh/gcp-inventory/pkg/util"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	version = "0.1.0"

	cfg    *config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "inventoryctl",
		Short: "Operate GCP inventory discovery",
		Long: `inventoryctl registers organizations, starts and cancels discovery scans,
and reads scan progress. It talks to the same Postgres and Redis as the
server and worker, configured through the environment or a .env file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			logger = util.NewLogger(cfg.Server.Env, "cli")
			slog.SetDefault(logger)
			return nil
		},
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openDB connects without Redis, for commands that only touch the catalog.
func openDB() (*gorm.DB, func(), error) {
	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return db, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func openApp(ctx context.Context) (*app.App, func(), error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown error", "error", err)
		}
	}, nil
}

// resolveOrganization finds an organization by ID or exact name.
func resolveOrganization(ctx context.Context, db *gorm.DB, ref string) (*models.Organization, error) {
	if ref == "" {
		return nil, errors.New("--org is required")
	}

	var org models.Organization
	query := db.WithContext(ctx)
	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("name = ?", ref)
	}
	err := query.First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("organization %q not found", ref)
	}
	if err != nil {
		return nil, fmt.Errorf("loading organization: %w", err)
	}
	return &org, nil
}
