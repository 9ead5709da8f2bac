package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/MrJamesThe3rd/clinicx/internal/clinic"
	"github.com/MrJamesThe3rd/clinicx/internal/config"
	"github.com/MrJamesThe3rd/clinicx/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := clinic.NewLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.New(cfg.ConnectionString(), database.Pool{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := database.Migrate(ctx, db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	slog.Info("schema applied", "database", cfg.DB.Name)
}
