package postgres

import (
	"context"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create rank state table
-- Version: 001

-- The whole rank state lives in one row per guild: the member->rank mapping
-- as JSONB and the cached listing message id. Reads and writes are whole-state,
-- matching the save-after-mutate discipline of the application layer.
CREATE TABLE IF NOT EXISTS rank_state (
    guild_id TEXT PRIMARY KEY,
    user_ranks JSONB NOT NULL DEFAULT '{}'::jsonb,
    rank_message_id TEXT,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);
`

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	Up        string
	AppliedAt time.Time
}

// GetMigrations returns all known migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_rank_state", Up: migration001Up},
	}
}

// Migrator applies pending migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator with the built-in migration set.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// EnsureMigrationTable creates the bookkeeping table if needed.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: create schema_migrations: %v", ErrMigrationFailed, err)
	}
	return nil
}

// Migrate applies all pending migrations in order.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}
		if _, err := m.conn.Exec(ctx, mig.Up); err != nil {
			return fmt.Errorf("%w: migration %d (%s): %v", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		if _, err := m.conn.Exec(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name,
		); err != nil {
			return fmt.Errorf("%w: record migration %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// appliedVersions returns the set of already-applied migration versions.
func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema_migrations: %v", ErrMigrationFailed, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("%w: scan version: %v", ErrMigrationFailed, err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
