package database

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// MigrateTenant provisions the tenant schema and applies every pending SQL
// file from migrationsPath inside it.
func (db *DB) MigrateTenant(ctx context.Context, tenantID, migrationsPath string) error {
	schema, err := SchemaName(tenantID)
	if err != nil {
		return err
	}

	if err := db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}

	migrationFiles, err := getMigrationFiles(migrationsPath)
	if err != nil {
		return fmt.Errorf("failed to get migration files: %w", err)
	}

	return db.inTenant(ctx, tenantID, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, CreateMigrationsTableSQL); err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}

		applied, err := getAppliedMigrations(ctx, tx)
		if err != nil {
			return fmt.Errorf("failed to get applied migrations: %w", err)
		}

		for _, file := range migrationFiles {
			if applied[file] {
				continue
			}

			content, err := os.ReadFile(filepath.Join(migrationsPath, file))
			if err != nil {
				return fmt.Errorf("failed to read migration file %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, string(content)); err != nil {
				return fmt.Errorf("failed to run migration %s: %w", file, err)
			}
			if _, err := tx.Exec(ctx, RecordMigrationSQL, file); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", file, err)
			}

			db.logger.Info("migration_applied", fmt.Sprintf("Applied migration: %s", file), "startup",
				map[string]any{"tenant": tenantID, "schema": schema})
		}
		return nil
	})
}

// getMigrationFiles returns a sorted list of migration files
func getMigrationFiles(migrationsPath string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(migrationsPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".sql") {
			files = append(files, filepath.Base(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

func getAppliedMigrations(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := tx.Query(ctx, "SELECT migration_name FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var migrationName string
		if err := rows.Scan(&migrationName); err != nil {
			return nil, err
		}
		applied[migrationName] = true
	}

	return applied, rows.Err()
}
