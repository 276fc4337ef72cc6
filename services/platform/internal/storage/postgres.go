package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the PostgreSQL credential store.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

const tenantColumns = `id, name, email, hashed_password, plan, status, webhook_secret, max_users, max_markets, created_at, updated_at, deleted_at`

const apiKeyColumns = `id, tenant_id, key_prefix, key_hash, name, is_active, last_used_at, expires_at, created_at, revoked_at`

func scanTenant(row pgx.Row, t *Tenant) error {
	return row.Scan(&t.ID, &t.Name, &t.Email, &t.HashedPassword, &t.Plan, &t.Status,
		&t.WebhookSecret, &t.MaxUsers, &t.MaxMarkets, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
}

func apiKeyDest(k *APIKey) []any {
	return []any{&k.ID, &k.TenantID, &k.Prefix, &k.KeyHash, &k.Name, &k.IsActive,
		&k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt, &k.RevokedAt}
}

func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.pool, s.logger)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) GetTenantByEmail(ctx context.Context, email string) (Tenant, error) {
	var t Tenant
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE email = $1 AND deleted_at IS NULL`, email)
	if err := scanTenant(row, &t); err != nil {
		return Tenant{}, mapPostgresError(err)
	}
	return t, nil
}

func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var t Tenant
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1 AND deleted_at IS NULL`, id)
	if err := scanTenant(row, &t); err != nil {
		return Tenant{}, mapPostgresError(err)
	}
	return t, nil
}

// CreateTenant inserts the tenant and, when key is not nil, its first key in
// one transaction.
func (s *Store) CreateTenant(ctx context.Context, t Tenant, key *APIKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, t.ID, t.Name, t.Email, t.HashedPassword, t.Plan, t.Status, t.WebhookSecret,
		t.MaxUsers, t.MaxMarkets, t.CreatedAt, t.UpdatedAt, t.DeletedAt)
	if err != nil {
		return mapPostgresError(err)
	}

	if key != nil {
		if err := insertAPIKey(ctx, tx, *key); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func insertAPIKey(ctx context.Context, tx pgx.Tx, k APIKey) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, k.ID, k.TenantID, k.Prefix, k.KeyHash, k.Name, k.IsActive, k.LastUsedAt, k.ExpiresAt, k.CreatedAt, k.RevokedAt)
	return mapPostgresError(err)
}

func (s *Store) CountActiveKeys(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE tenant_id = $1 AND is_active`, tenantID).Scan(&n)
	if err != nil {
		return 0, mapPostgresError(err)
	}
	return n, nil
}

// CreateAPIKey inserts k unless the tenant already holds maxActive active
// keys. The tenant row is locked so concurrent inserts for one tenant are
// serialised. maxActive <= 0 disables the check.
func (s *Store) CreateAPIKey(ctx context.Context, k APIKey, maxActive int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM tenants WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, k.TenantID).Scan(&locked)
	if err != nil {
		return mapPostgresError(err)
	}

	if maxActive > 0 {
		var active int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM api_keys WHERE tenant_id = $1 AND is_active`, k.TenantID).Scan(&active); err != nil {
			return mapPostgresError(err)
		}
		if active >= maxActive {
			return ErrQuotaExceeded
		}
	}

	if err := insertAPIKey(ctx, tx, k); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAPIKeyByID(ctx context.Context, id uuid.UUID) (APIKey, error) {
	var k APIKey
	err := s.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id).Scan(apiKeyDest(&k)...)
	if err != nil {
		return APIKey{}, mapPostgresError(err)
	}
	return k, nil
}

func (s *Store) ListActiveKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at, id
	`, tenantID)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(apiKeyDest(&k)...); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// FindActiveKeysByPrefix returns unexpired active keys with the given prefix
// whose tenant is active and not deleted.
func (s *Store) FindActiveKeysByPrefix(ctx context.Context, prefix string, now time.Time) ([]KeyCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT k.id, k.tenant_id, k.key_prefix, k.key_hash, k.name, k.is_active,
		       k.last_used_at, k.expires_at, k.created_at, k.revoked_at,
		       t.id, t.name, t.email, t.hashed_password, t.plan, t.status, t.webhook_secret,
		       t.max_users, t.max_markets, t.created_at, t.updated_at, t.deleted_at
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.key_prefix = $1
		  AND k.is_active
		  AND (k.expires_at IS NULL OR k.expires_at > $2)
		  AND t.status = $3
		  AND t.deleted_at IS NULL
	`, prefix, now, StatusActive)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var out []KeyCandidate
	for rows.Next() {
		var c KeyCandidate
		t := &c.Tenant
		dest := append(apiKeyDest(&c.APIKey),
			&t.ID, &t.Name, &t.Email, &t.HashedPassword, &t.Plan, &t.Status, &t.WebhookSecret,
			&t.MaxUsers, &t.MaxMarkets, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeactivateAPIKey marks the key inactive. The first revocation time is kept
// when the key was already revoked.
func (s *Store) DeactivateAPIKey(ctx context.Context, tenantID, keyID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys
		SET is_active = FALSE, revoked_at = COALESCE(revoked_at, $3)
		WHERE id = $1 AND tenant_id = $2
	`, keyID, tenantID, at)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	return mapPostgresError(err)
}

func (s *Store) InsertUsageLogs(ctx context.Context, logs []UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"usage_logs"},
		[]string{"tenant_id", "endpoint", "status_code", "response_ms", "logged_at"},
		pgx.CopyFromSlice(len(logs), func(i int) ([]any, error) {
			l := logs[i]
			return []any{l.TenantID, l.Endpoint, l.StatusCode, l.ResponseMS, l.LoggedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy usage logs: %w", mapPostgresError(err))
	}
	return nil
}

func (s *Store) SetTenantStatus(ctx context.Context, id uuid.UUID, status TenantStatus, at time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid tenant status %q", status)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET status = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, id, status, at)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteTenant(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET deleted_at = $2, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL
	`, id, at)
	if err != nil {
		return mapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Backend = (*Store)(nil)
