package storage

import (
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	StatusActive    TenantStatus = "ACTIVE"
	StatusSuspended TenantStatus = "SUSPENDED"
	StatusClosed    TenantStatus = "CLOSED"
)

func (s TenantStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusClosed:
		return true
	}
	return false
}

const (
	PlanFree          = "FREE"
	DefaultMaxUsers   = 100
	DefaultMaxMarkets = 10
	DefaultKeyName    = "Default"
)

type Tenant struct {
	ID             uuid.UUID    `db:"id"`
	Name           string       `db:"name"`
	Email          string       `db:"email"`
	HashedPassword string       `db:"hashed_password"`
	Plan           string       `db:"plan"`
	Status         TenantStatus `db:"status"`
	WebhookSecret  *string      `db:"webhook_secret"`
	MaxUsers       int          `db:"max_users"`
	MaxMarkets     int          `db:"max_markets"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
	DeletedAt      *time.Time   `db:"deleted_at"`
}

// APIKey is the stored form of a key. The raw secret is never part of it.
type APIKey struct {
	ID         uuid.UUID  `db:"id"`
	TenantID   uuid.UUID  `db:"tenant_id"`
	Prefix     string     `db:"key_prefix"`
	KeyHash    string     `db:"key_hash"`
	Name       string     `db:"name"`
	IsActive   bool       `db:"is_active"`
	LastUsedAt *time.Time `db:"last_used_at"`
	ExpiresAt  *time.Time `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

// Expired reports whether the key has an expiry at or before now.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

type UsageLog struct {
	ID         int64     `db:"id"`
	TenantID   uuid.UUID `db:"tenant_id"`
	Endpoint   string    `db:"endpoint"`
	StatusCode int       `db:"status_code"`
	ResponseMS int       `db:"response_ms"`
	LoggedAt   time.Time `db:"logged_at"`
}

// KeyCandidate is an active key together with its owning tenant.
type KeyCandidate struct {
	APIKey
	Tenant Tenant `db:"tenant"`
}
