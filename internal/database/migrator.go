package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// SchemaMigration records one applied migration.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName pins the bookkeeping table name.
func (SchemaMigration) TableName() string { return "schema_migrations" }

// Migrator applies a MigrationSet and tracks progress in schema_migrations.
type Migrator struct {
	db     *gorm.DB
	set    MigrationSet
	logger *slog.Logger
	now    func() time.Time
}

// NewMigrator builds a Migrator. A nil logger discards output.
func NewMigrator(db *gorm.DB, set MigrationSet, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Migrator{db: db, set: set, logger: logger, now: time.Now}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	if err := m.db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Applied lists applied versions in ascending order.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	var versions []int
	if err := m.db.WithContext(ctx).Model(&SchemaMigration{}).
		Order("version").Pluck("version", &versions).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return versions, nil
}

// Pending returns migrations not yet applied. It fails when the database
// holds versions this binary does not know about.
func (m *Migrator) Pending(ctx context.Context) (MigrationSet, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkUnknown(applied, m.set); err != nil {
		return nil, err
	}

	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending MigrationSet
	for _, mig := range m.set {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Up applies every pending migration, each in its own transaction, and
// returns what it applied.
func (m *Migrator) Up(ctx context.Context) (MigrationSet, error) {
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	for i, mig := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.Up).Error; err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: mig.Version, Name: mig.Name, AppliedAt: m.now().UTC()}).Error
		})
		if err != nil {
			return pending[:i], fmt.Errorf("apply %s: %w", mig.ID(), err)
		}
		m.logger.Info("migration applied", slog.String("migration", mig.ID()))
	}
	return pending, nil
}

// Down reverts one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	mig, ok := m.set.Find(version)
	if !ok {
		return fmt.Errorf("migration %d is not part of this build", version)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	idx := sort.SearchInts(applied, version)
	if idx == len(applied) || applied[idx] != version {
		return fmt.Errorf("migration %s has not been applied", mig.ID())
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&SchemaMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", mig.ID(), err)
	}
	m.logger.Info("migration reverted", slog.String("migration", mig.ID()))
	return nil
}

func checkUnknown(applied []int, set MigrationSet) error {
	var unknown []string
	for _, v := range applied {
		if _, ok := set.Find(v); !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", v))
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("schema_migrations has versions unknown to this build: %s", strings.Join(unknown, ", "))
}
