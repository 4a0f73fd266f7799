package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator applies the embedded goose migrations.
type Migrator struct {
	db     *sql.DB
	dir    string
	logger *zap.Logger
}

// NewMigrator prepares goose for postgres. dir is the folder inside the embedded tree.
func NewMigrator(db *sql.DB, dir string, logger *zap.Logger) (*Migrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == "" {
		dir = "migrations"
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Migrator{db: db, dir: dir, logger: logger}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, m.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	m.logger.Info("database migrated", zap.Int64("version", version))
	return nil
}

// Version reports the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("get migration version: %w", err)
	}
	return version, nil
}
