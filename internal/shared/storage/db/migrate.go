package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"

	"creditdocs-backend/internal/shared/telemetry"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var gooseSetup sync.Once
var gooseErr error

func setupGoose() error {
	gooseSetup.Do(func() {
		goose.SetBaseFS(migrationFiles)
		gooseErr = goose.SetDialect("postgres")
	})
	return gooseErr
}

// RunMigrations applies the embedded migrations and returns the resulting
// schema version. A nil database is a no-op.
func RunMigrations(ctx context.Context, database *sql.DB) (int64, error) {
	if database == nil {
		return 0, nil
	}
	if err := setupGoose(); err != nil {
		return 0, err
	}
	before, _ := goose.GetDBVersionContext(ctx, database)
	if err := goose.UpContext(ctx, database, "migrations"); err != nil {
		return before, fmt.Errorf("apply migrations: %w", err)
	}
	after, err := SchemaVersion(ctx, database)
	if err != nil {
		return 0, err
	}
	telemetry.Info("db.migrated", map[string]any{"from_version": before, "version": after})
	return after, nil
}

// SchemaVersion reports the latest applied migration.
func SchemaVersion(ctx context.Context, database *sql.DB) (int64, error) {
	if err := setupGoose(); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, database)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
