package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrateLogPrefix = "db:migrate"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ErrNoDownMigration is returned by MigrationDown when the last applied
// version has no .down.sql file.
var ErrNoDownMigration = errors.New("migration has no down file")

// MigrationState reports whether one version has been applied.
type MigrationState struct {
	Version   string
	Applied   bool
	AppliedAt time.Time
}

func appliedVersions(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - failed to create schema_migrations: %w", migrateLogPrefix, err)
	}
	rows, err := pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrateLogPrefix, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var v string
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("%s - failed to scan schema_migrations: %w", migrateLogPrefix, err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

func appliedSet(applied map[string]time.Time) map[string]bool {
	set := make(map[string]bool, len(applied))
	for v := range applied {
		set[v] = true
	}
	return set
}

// RunMigrations applies every pending migration, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return err
	}

	todo := pending(migrations, appliedSet(applied))
	for _, m := range todo {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", migrateLogPrefix, m.Version, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrateLogPrefix, m.Version))
	}
	slog.Info(fmt.Sprintf("%s - Schema up to date (%d applied now, %d total)", migrateLogPrefix, len(todo), len(migrations)))
	return nil
}

// MigrationStatus lists every known migration with its applied state.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) ([]MigrationState, error) {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		at, ok := applied[m.Version]
		out = append(out, MigrationState{Version: m.Version, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

// MigrationDown rolls back the most recently applied migration and returns its
// version, or "" when nothing is applied.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (string, error) {
	applied, err := appliedVersions(ctx, pool)
	if err != nil {
		return "", err
	}
	m, ok := lastApplied(migrations, appliedSet(applied))
	if !ok {
		return "", nil
	}
	if m.Down == "" {
		return "", fmt.Errorf("%s - %s: %w", migrateLogPrefix, m.Version, ErrNoDownMigration)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("%s - rollback of %s failed: %w", migrateLogPrefix, m.Version, err)
	}
	slog.Info(fmt.Sprintf("%s - Rolled back %s", migrateLogPrefix, m.Version))
	return m.Version, nil
}
