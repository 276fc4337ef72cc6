package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Backend is the full credential store surface implemented by the Postgres
// and SQLite stores.
type Backend interface {
	GetTenantByEmail(ctx context.Context, email string) (Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (Tenant, error)
	CreateTenant(ctx context.Context, t Tenant, key *APIKey) error
	SetTenantStatus(ctx context.Context, id uuid.UUID, status TenantStatus, at time.Time) error
	SoftDeleteTenant(ctx context.Context, id uuid.UUID, at time.Time) error

	CountActiveKeys(ctx context.Context, tenantID uuid.UUID) (int, error)
	CreateAPIKey(ctx context.Context, k APIKey, maxActive int) error
	GetAPIKeyByID(ctx context.Context, id uuid.UUID) (APIKey, error)
	ListActiveKeys(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error)
	FindActiveKeysByPrefix(ctx context.Context, prefix string, now time.Time) ([]KeyCandidate, error)
	DeactivateAPIKey(ctx context.Context, tenantID, keyID uuid.UUID, at time.Time) error
	TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error

	InsertUsageLogs(ctx context.Context, logs []UsageLog) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver     string
	Postgres   PoolConfig
	SQLitePath string
}

// Open connects to the configured backend. It does not run migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		pool, err := NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return New(pool, logger), nil
	case DriverSQLite:
		return NewSQLite(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
