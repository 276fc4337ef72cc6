package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/AfshinJalili/sentinel/services/platform/internal/validation"
	"github.com/google/uuid"
)

const TokenTypeBearer = "bearer"

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// RegisterResult carries the default key's raw secret. It is the only place
// the secret exists after registration.
type RegisterResult struct {
	TenantID uuid.UUID
	APIKey   string
}

type LoginResult struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	ExpiresIn   int64
}

type Profile struct {
	ID        uuid.UUID            `json:"tenant_id"`
	Name      string               `json:"name"`
	Email     string               `json:"email"`
	Plan      string               `json:"plan"`
	Status    storage.TenantStatus `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
}

func ProfileOf(t storage.Tenant) Profile {
	return Profile{
		ID:        t.ID,
		Name:      t.Name,
		Email:     t.Email,
		Plan:      t.Plan,
		Status:    t.Status,
		CreatedAt: t.CreatedAt,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	if errs := validation.ValidateRegister(in.Name, in.Email, in.Password); len(errs) > 0 {
		return RegisterResult{}, errs
	}
	email := validation.NormalizeEmail(in.Email)

	_, err := s.store.GetTenantByEmail(ctx, email)
	switch {
	case err == nil:
		s.metrics.auth("register", "email_taken")
		return RegisterResult{}, ErrEmailTaken
	case !errors.Is(err, storage.ErrNotFound):
		return RegisterResult{}, fmt.Errorf("lookup tenant: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	tenant := storage.Tenant{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(in.Name),
		Email:          email,
		HashedPassword: hashed,
		Plan:           storage.PlanFree,
		Status:         storage.StatusActive,
		MaxUsers:       storage.DefaultMaxUsers,
		MaxMarkets:     storage.DefaultMaxMarkets,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	key, raw, err := s.newKey(tenant.ID, storage.DefaultKeyName, nil, now)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("generate default key: %w", err)
	}

	if err := s.store.CreateTenant(ctx, tenant, &key); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			s.metrics.auth("register", "email_taken")
			return RegisterResult{}, ErrEmailTaken
		}
		return RegisterResult{}, fmt.Errorf("create tenant: %w", err)
	}

	s.metrics.auth("register", "success")
	s.logger.Info("tenant registered", "tenant_id", tenant.ID.String(), "key_id", key.ID.String())
	return RegisterResult{TenantID: tenant.ID, APIKey: raw}, nil
}

// Login never reveals whether the email exists: an unknown email spends one
// hash verification and fails exactly like a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	if errs := validation.ValidateLogin(email, password); len(errs) > 0 {
		return LoginResult{}, errs
	}
	email = validation.NormalizeEmail(email)

	tenant, err := s.store.GetTenantByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.hasher.VerifyDummy(password)
			s.metrics.auth("login", "invalid")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup tenant: %w", err)
	}

	ok, err := s.hasher.Verify(password, tenant.HashedPassword)
	if err != nil {
		s.logger.Error("stored password digest unreadable", "tenant_id", tenant.ID.String(), "error", err)
	}
	if !ok {
		s.metrics.auth("login", "invalid")
		return LoginResult{}, ErrInvalidCredentials
	}

	if !statusGate(&tenant) {
		s.metrics.auth("login", "suspended")
		return LoginResult{}, ErrAccountSuspended
	}

	token, expiresAt, err := s.tokens.Issue(tenant.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.metrics.auth("login", "success")
	return LoginResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   expiresAt,
		ExpiresIn:   int64(s.tokens.TTL() / time.Second),
	}, nil
}

// ResolveSession returns the live tenant behind a session token. Status is
// re-read on every call, so suspension applies to tokens already issued.
func (s *Service) ResolveSession(ctx context.Context, token string) (storage.Tenant, error) {
	if token == "" {
		return storage.Tenant{}, ErrMissingCredential
	}

	tenantID, err := s.tokens.Validate(token)
	if err != nil {
		s.metrics.auth("session", "invalid")
		return storage.Tenant{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	tenant, err := s.store.GetTenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.auth("session", "suspended")
			return storage.Tenant{}, ErrAccountSuspended
		}
		return storage.Tenant{}, fmt.Errorf("lookup tenant: %w", err)
	}

	if !statusGate(&tenant) {
		s.metrics.auth("session", "suspended")
		return storage.Tenant{}, ErrAccountSuspended
	}

	s.metrics.auth("session", "success")
	return tenant, nil
}
