package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AfshinJalili/sentinel/libs/apikey"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/AfshinJalili/sentinel/services/platform/internal/validation"
	"github.com/google/uuid"
)

// maxKeyLength bounds presented keys before any store access.
const maxKeyLength = 256

type GenerateKeyInput struct {
	Name      string
	ExpiresAt *time.Time
}

// GeneratedKey is returned once. RawKey is not recoverable afterwards.
type GeneratedKey struct {
	KeyID     uuid.UUID
	RawKey    string
	Prefix    string
	Name      string
	ExpiresAt *time.Time
}

type KeySummary struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// VerifiedKey identifies the tenant and key behind a presented API key.
type VerifiedKey struct {
	Tenant storage.Tenant
	KeyID  uuid.UUID
}

func (s *Service) GenerateKey(ctx context.Context, tenantID uuid.UUID, in GenerateKeyInput) (GeneratedKey, error) {
	now := s.now().UTC()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = storage.DefaultKeyName
	}
	if errs := validation.ValidateKeyName(name, in.ExpiresAt, now); len(errs) > 0 {
		return GeneratedKey{}, errs
	}

	active, err := s.store.CountActiveKeys(ctx, tenantID)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("count active keys: %w", err)
	}
	if active >= s.maxActiveKeys {
		s.metrics.keyOp("generate", "quota_exceeded")
		return GeneratedKey{}, ErrQuotaExceeded
	}

	var expiresAt *time.Time
	if in.ExpiresAt != nil {
		e := in.ExpiresAt.UTC()
		expiresAt = &e
	}

	key, raw, err := s.newKey(tenantID, name, expiresAt, now)
	if err != nil {
		return GeneratedKey{}, fmt.Errorf("generate key: %w", err)
	}

	if err := s.store.CreateAPIKey(ctx, key, s.maxActiveKeys); err != nil {
		switch {
		case errors.Is(err, storage.ErrQuotaExceeded):
			s.metrics.keyOp("generate", "quota_exceeded")
			return GeneratedKey{}, ErrQuotaExceeded
		case errors.Is(err, storage.ErrNotFound):
			return GeneratedKey{}, ErrAccountSuspended
		}
		return GeneratedKey{}, fmt.Errorf("create api key: %w", err)
	}

	s.metrics.keyOp("generate", "success")
	s.logger.Info("api key created", "tenant_id", tenantID.String(), "key_id", key.ID.String(), "prefix", key.Prefix)
	return GeneratedKey{
		KeyID:     key.ID,
		RawKey:    raw,
		Prefix:    key.Prefix,
		Name:      key.Name,
		ExpiresAt: key.ExpiresAt,
	}, nil
}

func (s *Service) ListKeys(ctx context.Context, tenantID uuid.UUID) ([]KeySummary, error) {
	keys, err := s.store.ListActiveKeys(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	out := make([]KeySummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeySummary{
			ID:         k.ID,
			Name:       k.Name,
			Prefix:     k.Prefix,
			CreatedAt:  k.CreatedAt,
			ExpiresAt:  k.ExpiresAt,
			LastUsedAt: k.LastUsedAt,
		})
	}
	return out, nil
}

// RevokeKey deactivates a key owned by tenantID. Keys of other tenants are
// reported as not found. Revoking an inactive key succeeds.
func (s *Service) RevokeKey(ctx context.Context, tenantID, keyID uuid.UUID) error {
	key, err := s.store.GetAPIKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.keyOp("revoke", "not_found")
			return ErrKeyNotFound
		}
		return fmt.Errorf("lookup api key: %w", err)
	}
	if key.TenantID != tenantID {
		s.metrics.keyOp("revoke", "not_found")
		return ErrKeyNotFound
	}

	if err := s.store.DeactivateAPIKey(ctx, tenantID, keyID, s.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrKeyNotFound
		}
		return fmt.Errorf("deactivate api key: %w", err)
	}

	s.metrics.keyOp("revoke", "success")
	s.logger.Info("api key revoked", "tenant_id", tenantID.String(), "key_id", keyID.String())
	return nil
}

// VerifyKey resolves a raw API key to its tenant. Candidates are narrowed by
// prefix and then checked one by one against their salted hashes.
func (s *Service) VerifyKey(ctx context.Context, raw string) (VerifiedKey, error) {
	start := time.Now()
	result := "invalid"
	defer func() {
		if s.metrics != nil {
			s.metrics.KeyVerifications.WithLabelValues(result).Inc()
			s.metrics.KeyVerifyLatency.Observe(time.Since(start).Seconds())
		}
	}()

	if raw == "" {
		result = "missing"
		return VerifiedKey{}, ErrMissingCredential
	}
	if len(raw) > maxKeyLength || !apikey.HasTag(raw, s.keyTag) {
		return VerifiedKey{}, ErrInvalidCredential
	}

	now := s.now().UTC()
	candidates, err := s.store.FindActiveKeysByPrefix(ctx, apikey.Prefix(raw), now)
	if err != nil {
		result = "error"
		return VerifiedKey{}, fmt.Errorf("find api keys: %w", err)
	}
	if s.metrics != nil {
		s.metrics.KeyVerifyCandidates.Observe(float64(len(candidates)))
	}

	for _, c := range candidates {
		ok, err := s.hasher.Verify(raw, c.KeyHash)
		if err != nil {
			s.logger.Error("stored api key digest unreadable", "key_id", c.ID.String(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		if !statusGate(&c.Tenant) {
			result = "suspended"
			return VerifiedKey{}, ErrInvalidCredential
		}

		s.touch(ctx, c.ID, now)
		result = "valid"
		return VerifiedKey{Tenant: c.Tenant, KeyID: c.ID}, nil
	}
	return VerifiedKey{}, ErrInvalidCredential
}

// touch records last use in the background so verification never waits on it.
func (s *Service) touch(ctx context.Context, keyID uuid.UUID, at time.Time) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.touchTimeout)
		defer cancel()
		if err := s.store.TouchAPIKey(ctx, keyID, at); err != nil {
			s.logger.Warn("update api key last use failed", "key_id", keyID.String(), "error", err)
		}
	}()
}
