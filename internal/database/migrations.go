package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// RunMigrations applies every embedded migration that is not yet recorded in
// schema_migrations, each in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) (int, error) {
	return runMigrations(ctx, db, migrationFiles, logger)
}

func runMigrations(ctx context.Context, db *sql.DB, files fs.FS, logger *slog.Logger) (int, error) {
	logger.Info("checking for pending database migrations")

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return 0, err
	}

	names, err := fs.Glob(files, "migrations/*.sql")
	if err != nil {
		return 0, fmt.Errorf("failed to list migration files: %w", err)
	}
	sort.Strings(names)

	pending := 0
	for _, name := range names {
		version := path.Base(name)
		if applied[version] {
			continue
		}

		content, err := fs.ReadFile(files, name)
		if err != nil {
			return pending, fmt.Errorf("failed to read migration %s: %w", version, err)
		}

		logger.Info("applying migration", "file", version)
		if err := applyMigration(ctx, db, version, string(content)); err != nil {
			return pending, err
		}
		pending++
		logger.Info("migration applied successfully", "file", version)
	}

	if pending == 0 {
		logger.Info("no pending migrations found")
	} else {
		logger.Info("migrations completed", "count", pending)
	}
	return pending, nil
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func applyMigration(ctx context.Context, db *sql.DB, version, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return nil
}
