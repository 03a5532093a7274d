package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"

	"staffdesk/core/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func newMigrationProvider(ctx context.Context, db *sql.DB) (*goose.Provider, error) {
	isPG, err := isPostgresDB(ctx, db)
	if err != nil {
		return nil, err
	}
	dialect := goose.DialectSQLite3
	if isPG {
		dialect = goose.DialectPostgres
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(dialect, db, sub)
}

// ApplyMigrations brings the journal schema up to date.
func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	provider, err := newMigrationProvider(ctx, db)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	for _, r := range results {
		logger.Printf("applied migration %s", r.Source.Path)
	}
	return nil
}

func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	provider, err := newMigrationProvider(ctx, db)
	if err != nil {
		return 0, err
	}
	return provider.GetDBVersion(ctx)
}
