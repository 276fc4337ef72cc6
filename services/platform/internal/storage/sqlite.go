package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-node credential store. It holds one connection,
// so transactions are serialised by the pool.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

const sqliteParams = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"

// NewSQLite opens the database at path. An empty path opens a private
// in-memory database.
func NewSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var dsn string
	if path == "" {
		dsn = ":memory:?" + sqliteParams
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = path + "?" + sqliteParams + "&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for i, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migration %d: %w", i, err)
		}
	}
	s.logger.Info("migrations complete", "driver", "sqlite", "statements", len(sqliteSchema))
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetTenantByEmail(ctx context.Context, email string) (Tenant, error) {
	var t Tenant
	err := s.db.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE email = ? AND deleted_at IS NULL`, email)
	if err != nil {
		return Tenant{}, mapSQLError(err)
	}
	return t, nil
}

func (s *SQLiteStore) GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var t Tenant
	err := s.db.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return Tenant{}, mapSQLError(err)
	}
	return t, nil
}

const insertTenantSQL = `
	INSERT INTO tenants (` + tenantColumns + `)
	VALUES (:id, :name, :email, :hashed_password, :plan, :status, :webhook_secret,
	        :max_users, :max_markets, :created_at, :updated_at, :deleted_at)`

const insertAPIKeySQL = `
	INSERT INTO api_keys (` + apiKeyColumns + `)
	VALUES (:id, :tenant_id, :key_prefix, :key_hash, :name, :is_active,
	        :last_used_at, :expires_at, :created_at, :revoked_at)`

func (s *SQLiteStore) CreateTenant(ctx context.Context, t Tenant, key *APIKey) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertTenantSQL, t); err != nil {
		return mapSQLError(err)
	}
	if key != nil {
		if _, err := tx.NamedExecContext(ctx, insertAPIKeySQL, *key); err != nil {
			return mapSQLError(err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountActiveKeys(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM api_keys WHERE tenant_id = ? AND is_active = 1`, tenantID); err != nil {
		return 0, mapSQLError(err)
	}
	return n, nil
}

func (s *SQLiteStore) CreateAPIKey(ctx context.Context, k APIKey, maxActive int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM tenants WHERE id = ? AND deleted_at IS NULL`, k.TenantID); err != nil {
		return mapSQLError(err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	if maxActive > 0 {
		var active int
		if err := tx.GetContext(ctx, &active, `SELECT COUNT(*) FROM api_keys WHERE tenant_id = ? AND is_active = 1`, k.TenantID); err != nil {
			return mapSQLError(err)
		}
		if active >= maxActive {
			return ErrQuotaExceeded
		}
	}

	if _, err := tx.NamedExecContext(ctx, insertAPIKeySQL, k); err != nil {
		return mapSQLError(err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetAPIKeyByID(ctx context.Context, id uuid.UUID) (APIKey, error) {
	var k APIKey
	if err := s.db.GetContext(ctx, &k, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id); err != nil {
		return APIKey{}, mapSQLError(err)
	}
	return k, nil
}

func (s *SQLiteStore) ListActiveKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	keys := make([]APIKey, 0)
	err := s.db.SelectContext(ctx, &keys, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE tenant_id = ? AND is_active = 1
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, mapSQLError(err)
	}
	return keys, nil
}

func (s *SQLiteStore) FindActiveKeysByPrefix(ctx context.Context, prefix string, now time.Time) ([]KeyCandidate, error) {
	var rows []KeyCandidate
	err := s.db.SelectContext(ctx, &rows, `
		SELECT k.id, k.tenant_id, k.key_prefix, k.key_hash, k.name, k.is_active,
		       k.last_used_at, k.expires_at, k.created_at, k.revoked_at,
		       t.id AS "tenant.id", t.name AS "tenant.name", t.email AS "tenant.email",
		       t.hashed_password AS "tenant.hashed_password", t.plan AS "tenant.plan",
		       t.status AS "tenant.status", t.webhook_secret AS "tenant.webhook_secret",
		       t.max_users AS "tenant.max_users", t.max_markets AS "tenant.max_markets",
		       t.created_at AS "tenant.created_at", t.updated_at AS "tenant.updated_at",
		       t.deleted_at AS "tenant.deleted_at"
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.key_prefix = ?
		  AND k.is_active = 1
		  AND t.status = ?
		  AND t.deleted_at IS NULL
	`, prefix, StatusActive)
	if err != nil {
		return nil, mapSQLError(err)
	}

	out := rows[:0]
	for _, c := range rows {
		if !c.Expired(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SQLiteStore) DeactivateAPIKey(ctx context.Context, tenantID, keyID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys
		SET is_active = 0, revoked_at = COALESCE(revoked_at, ?)
		WHERE id = ? AND tenant_id = ?
	`, at, keyID, tenantID)
	return rowsAffectedOrNotFound(res, err)
}

func (s *SQLiteStore) TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, keyID)
	return mapSQLError(err)
}

func (s *SQLiteStore) InsertUsageLogs(ctx context.Context, logs []UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO usage_logs (tenant_id, endpoint, status_code, response_ms, logged_at)
		VALUES (:tenant_id, :endpoint, :status_code, :response_ms, :logged_at)
	`, logs)
	if err != nil {
		return fmt.Errorf("insert usage logs: %w", mapSQLError(err))
	}
	return nil
}

func (s *SQLiteStore) SetTenantStatus(ctx context.Context, id uuid.UUID, status TenantStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid tenant status %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET status = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, status, at, id)
	return rowsAffectedOrNotFound(res, err)
}

func (s *SQLiteStore) SoftDeleteTenant(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, at, at, id)
	return rowsAffectedOrNotFound(res, err)
}

var _ Backend = (*SQLiteStore)(nil)
