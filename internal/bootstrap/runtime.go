// Package bootstrap wires the shared runtime used by the command-line tools.
package bootstrap

import (
	"fmt"
	"log/slog"
	"strings"

	"ghostwriter/internal/cache"
	"ghostwriter/internal/config"
	"ghostwriter/internal/database"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// ApplySchema runs migrations according to DB_SCHEMA_MODE on connect.
	ApplySchema bool
	// SeedDemo loads the demo preset into an empty development database.
	SeedDemo bool
	// SkipRedis leaves the cache client unset.
	SkipRedis bool
}

// InitRuntime routes slog through the application logger, connects the
// database and optionally Redis and seeds demo data.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	slog.SetDefault(middleware.Logger)

	db, err := database.ConnectWithOptions(cfg, opts.ApplySchema)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	var r *redis.Client
	if !opts.SkipRedis {
		// Nil when Redis is unreachable; callers fall back to in-process locks.
		cache.InitRedis(cfg.RedisURL)
		r = cache.GetClient()
	}

	if opts.SeedDemo {
		if err := seedDemo(cfg, db); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

func seedDemo(cfg *config.Config, db *gorm.DB) error {
	if !strings.EqualFold(cfg.Env, "development") {
		middleware.Logger.Warn("demo seeding skipped outside development", slog.String("env", cfg.Env))
		return nil
	}

	var users int64
	if err := db.Table("users").Count(&users).Error; err != nil {
		return err
	}
	if users > 0 {
		return nil
	}

	opts, err := seed.ApplyPreset("demo", seed.Options{FastHash: true})
	if err != nil {
		return err
	}
	sum, err := seed.NewSeeder(db, opts).Seed()
	if err != nil {
		return err
	}
	middleware.Logger.Info("demo data seeded",
		slog.Int("users", sum.Users),
		slog.Int("clients", sum.Clients),
		slog.Int("posts", sum.Posts))
	return nil
}
