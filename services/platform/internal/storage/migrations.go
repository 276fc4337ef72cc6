package storage

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/postgres/*.sql
var migrationsFS embed.FS

// migrationLockID serialises concurrent migrators across replicas.
const migrationLockID = 7_340_117

type migration struct {
	version int
	name    string
	content string
}

func loadMigrations(logger *slog.Logger) ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations/postgres")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		// "1_initial_schema.sql" -> 1
		parts := strings.SplitN(entry.Name(), "_", 2)
		version, err := strconv.Atoi(parts[0])
		if len(parts) < 2 || err != nil {
			logger.Warn("skipping migration file with invalid name", "file", entry.Name())
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/postgres/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration{version: version, name: entry.Name(), content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})
	return migrations, nil
}

func runMigrations(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations(logger)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		ok, err := executeMigration(ctx, pool, m, logger)
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if ok {
			applied++
		}
	}
	logger.Info("migrations complete", "found", len(migrations), "applied", applied)
	return nil
}

func executeMigration(ctx context.Context, pool *pgxpool.Pool, m migration, logger *slog.Logger) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return false, fmt.Errorf("acquire migration lock: %w", err)
	}

	var applied bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&applied); err != nil {
		return false, fmt.Errorf("check migration status: %w", err)
	}
	if applied {
		logger.Debug("migration already applied", "version", m.version, "name", m.name)
		return false, nil
	}

	logger.Info("applying migration", "version", m.version, "name", m.name)
	if _, err := tx.Exec(ctx, m.content); err != nil {
		return false, fmt.Errorf("execute migration sql: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
		return false, fmt.Errorf("record migration: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration: %w", err)
	}
	return true, nil
}

// sqliteSchema is applied in order on every open; each statement is idempotent.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id              TEXT PRIMARY KEY,
		name            TEXT NOT NULL,
		email           TEXT NOT NULL UNIQUE,
		hashed_password TEXT NOT NULL,
		plan            TEXT NOT NULL DEFAULT 'FREE',
		status          TEXT NOT NULL DEFAULT 'ACTIVE' CHECK (status IN ('ACTIVE', 'SUSPENDED', 'CLOSED')),
		webhook_secret  TEXT,
		max_users       INTEGER NOT NULL DEFAULT 100,
		max_markets     INTEGER NOT NULL DEFAULT 10,
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL,
		deleted_at      TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
		key_prefix   TEXT NOT NULL,
		key_hash     TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL DEFAULT 'Default',
		is_active    BOOLEAN NOT NULL DEFAULT 1,
		last_used_at TIMESTAMP,
		expires_at   TIMESTAMP,
		created_at   TIMESTAMP NOT NULL,
		revoked_at   TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix, is_active)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_tenant ON api_keys (tenant_id, is_active)`,
	`CREATE TABLE IF NOT EXISTS usage_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id   TEXT NOT NULL REFERENCES tenants (id) ON DELETE CASCADE,
		endpoint    TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		response_ms INTEGER NOT NULL,
		logged_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_logs_tenant ON usage_logs (tenant_id, logged_at)`,
}
