// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"ghostwriter/internal/bootstrap"
	"ghostwriter/internal/config"
	"ghostwriter/internal/database"
	"ghostwriter/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: migrate <up|auto|status|down> [version]")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, _, err := bootstrap.InitRuntime(cfg, bootstrap.Options{SkipRedis: true})
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := middleware.Logger
	migrator := database.NewMigrator(db, database.Migrations(), logger)
	switch cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0))); cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			return fmt.Errorf("sql migrations failed: %w", err)
		}
		logger.Info("sql migrations applied", slog.Int("count", len(applied)))
	case "auto":
		cfg.DBSchemaMode = database.SchemaModeAuto
		if err := database.ApplySchema(ctx, db, cfg); err != nil {
			return fmt.Errorf("auto schema apply failed: %w", err)
		}
	case "status":
		status, err := database.GetSchemaStatus(ctx, db, cfg)
		if err != nil {
			return fmt.Errorf("schema status failed: %w", err)
		}
		logger.Info("schema status",
			slog.String("mode", status.Mode),
			slog.String("env", status.Env),
			slog.Bool("migrations", status.Migrations),
			slog.Bool("auto_migrate", status.AutoMigrate),
			slog.Int("applied", len(status.Applied)),
			slog.Int("pending", len(status.Pending)))
		for _, m := range status.Pending {
			logger.Info("pending migration", slog.String("migration", m.ID()))
		}
	case "down":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: migrate down <version>")
		}
		version, err := strconv.Atoi(flag.Arg(1))
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", flag.Arg(1), err)
		}
		if err := migrator.Down(ctx, version); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
	default:
		return usage()
	}

	return nil
}
