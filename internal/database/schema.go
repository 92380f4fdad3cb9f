package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"ghostwriter/internal/config"
	"ghostwriter/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan says which schema steps run for a given config.
type SchemaPlan struct {
	Mode        string
	Env         string
	Migrations  bool
	AutoMigrate bool
}

// PlanSchema resolves DB_SCHEMA_MODE against the environment. Hybrid mode
// skips AutoMigrate outside development and test. Auto mode in production
// requires DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE.
func PlanSchema(cfg *config.Config) (SchemaPlan, error) {
	plan := SchemaPlan{Mode: strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode)), Env: cfg.Env}
	if plan.Mode == "" {
		plan.Mode = SchemaModeHybrid
	}
	production := deployedEnv(cfg.Env)

	switch plan.Mode {
	case SchemaModeSQL:
		plan.Migrations = true
	case SchemaModeHybrid:
		plan.Migrations = true
		plan.AutoMigrate = !production
	case SchemaModeAuto:
		if production && !cfg.DBAutoMigrateAllowDestructive {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto in %q needs DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.AutoMigrate = true
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", plan.Mode)
	}
	return plan, nil
}

func deployedEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

// ApplySchema runs the steps PlanSchema selects for cfg.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return err
	}
	log := middleware.Logger.With(slog.String("mode", plan.Mode), slog.String("env", plan.Env))

	if plan.Migrations {
		applied, err := NewMigrator(db, Migrations(), log).Up(ctx)
		if err != nil {
			return err
		}
		log.Info("sql migrations up to date", slog.Int("applied", len(applied)))
	}
	if plan.AutoMigrate {
		if plan.Mode == SchemaModeAuto && deployedEnv(plan.Env) {
			log.Warn("AutoMigrate enabled in a deployed environment")
		}
		if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		log.Info("models auto-migrated", slog.Int("models", len(PersistentModels())))
	}
	return nil
}

// SchemaStatus reports the plan and, when migrations run, what is pending.
type SchemaStatus struct {
	SchemaPlan
	Applied []int
	Pending MigrationSet
}

// GetSchemaStatus inspects the database without changing it, apart from
// creating schema_migrations if missing.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := PlanSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{SchemaPlan: plan}
	if !plan.Migrations {
		return status, nil
	}

	m := NewMigrator(db, Migrations(), nil)
	if status.Applied, err = m.Applied(ctx); err != nil {
		return nil, err
	}
	if status.Pending, err = m.Pending(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
