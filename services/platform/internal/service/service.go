package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AfshinJalili/sentinel/libs/apikey"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/google/uuid"
)

const (
	DefaultMaxActiveKeys = 5
	defaultTouchTimeout  = 2 * time.Second
)

// Store is the subset of the credential store the flows use.
type Store interface {
	GetTenantByEmail(ctx context.Context, email string) (storage.Tenant, error)
	GetTenantByID(ctx context.Context, id uuid.UUID) (storage.Tenant, error)
	CreateTenant(ctx context.Context, t storage.Tenant, key *storage.APIKey) error
	CountActiveKeys(ctx context.Context, tenantID uuid.UUID) (int, error)
	CreateAPIKey(ctx context.Context, k storage.APIKey, maxActive int) error
	GetAPIKeyByID(ctx context.Context, id uuid.UUID) (storage.APIKey, error)
	ListActiveKeys(ctx context.Context, tenantID uuid.UUID) ([]storage.APIKey, error)
	FindActiveKeysByPrefix(ctx context.Context, prefix string, now time.Time) ([]storage.KeyCandidate, error)
	DeactivateAPIKey(ctx context.Context, tenantID, keyID uuid.UUID, at time.Time) error
	TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) (bool, error)
	VerifyDummy(secret string)
}

type TokenCodec interface {
	Issue(subject uuid.UUID) (string, time.Time, error)
	Validate(token string) (uuid.UUID, error)
	TTL() time.Duration
}

type Options struct {
	// KeyTag prefixes every generated API key. Default "snt_".
	KeyTag string
	// MaxActiveKeys caps active keys per tenant. Default 5.
	MaxActiveKeys int
	// TouchTimeout bounds the background last_used_at update.
	TouchTimeout time.Duration
	Now          func() time.Time
}

// Service implements tenant authentication and the API key lifecycle.
type Service struct {
	store   Store
	hasher  Hasher
	tokens  TokenCodec
	logger  *slog.Logger
	metrics *Metrics

	keyTag        string
	maxActiveKeys int
	touchTimeout  time.Duration
	now           func() time.Time

	background sync.WaitGroup
}

func New(store Store, hasher Hasher, tokens TokenCodec, opts Options, logger *slog.Logger, metrics *Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.KeyTag == "" {
		opts.KeyTag = apikey.DefaultTag
	}
	if opts.MaxActiveKeys <= 0 {
		opts.MaxActiveKeys = DefaultMaxActiveKeys
	}
	if opts.TouchTimeout <= 0 {
		opts.TouchTimeout = defaultTouchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:         store,
		hasher:        hasher,
		tokens:        tokens,
		logger:        logger,
		metrics:       metrics,
		keyTag:        opts.KeyTag,
		maxActiveKeys: opts.MaxActiveKeys,
		touchTimeout:  opts.TouchTimeout,
		now:           opts.Now,
	}
}

// Wait blocks until background key touches have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func (s *Service) newKey(tenantID uuid.UUID, name string, expiresAt *time.Time, now time.Time) (storage.APIKey, string, error) {
	raw, prefix, err := apikey.Generate(s.keyTag)
	if err != nil {
		return storage.APIKey{}, "", err
	}
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return storage.APIKey{}, "", err
	}
	return storage.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Prefix:    prefix,
		KeyHash:   hash,
		Name:      name,
		IsActive:  true,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, raw, nil
}
