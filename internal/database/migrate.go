package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"photo-indexer/internal/errdefs"
	"photo-indexer/internal/logging"
	"photo-indexer/internal/metrics"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrate applies pending schema migrations using a goose provider bound to
// this connection, so no goose package state is touched.
func (d *Database) migrate(ctx context.Context) (err error) {
	done := observeQuery("migrate")
	defer func() { done(err) }()

	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, d.db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w: %w", errdefs.ErrStoreUnavailable, err)
	}

	for _, r := range results {
		if r.Source == nil {
			continue
		}
		logging.Info("Applied migration %d (%s) in %v", r.Source.Version, r.Source.Path, r.Duration)
		metrics.DBMigrationsApplied.Inc()
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logging.Debug("Database schema at version %d", version)
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (d *Database) SchemaVersion(ctx context.Context) (int64, error) {
	fsys, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return 0, err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, d.db, fsys)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
