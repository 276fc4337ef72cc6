package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite("", nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func testTenant(email string) Tenant {
	return Tenant{
		ID:             uuid.New(),
		Name:           "Acme",
		Email:          email,
		HashedPassword: "$argon2id$stub",
		Plan:           PlanFree,
		Status:         StatusActive,
		MaxUsers:       DefaultMaxUsers,
		MaxMarkets:     DefaultMaxMarkets,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}

func testKey(tenantID uuid.UUID, prefix, hash string) APIKey {
	return APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Prefix:    prefix,
		KeyHash:   hash,
		Name:      DefaultKeyName,
		IsActive:  true,
		CreatedAt: baseTime,
	}
}

func TestSQLiteTenantLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tenant := testTenant("a@x.com")
	key := testKey(tenant.ID, "snt_aaaaaaaa", "hash-1")
	if err := s.CreateTenant(ctx, tenant, &key); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	got, err := s.GetTenantByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.ID != tenant.ID || got.Status != StatusActive || got.Plan != PlanFree || !got.CreatedAt.Equal(baseTime) {
		t.Fatalf("unexpected tenant %+v", got)
	}
	if _, err := s.GetTenantByEmail(ctx, "A@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected case-sensitive email lookup, got %v", err)
	}
	if _, err := s.GetTenantByID(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.CreateTenant(ctx, testTenant("a@x.com"), nil); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	n, err := s.CountActiveKeys(ctx, tenant.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 active key, got %d err=%v", n, err)
	}
}

func TestSQLiteCreateTenantIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := testTenant("first@x.com")
	key := testKey(first.ID, "snt_aaaaaaaa", "same-hash")
	if err := s.CreateTenant(ctx, first, &key); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	second := testTenant("second@x.com")
	clash := testKey(second.ID, "snt_bbbbbbbb", "same-hash")
	if err := s.CreateTenant(ctx, second, &clash); !errors.Is(err, ErrDuplicateKeyHash) {
		t.Fatalf("expected ErrDuplicateKeyHash, got %v", err)
	}
	if _, err := s.GetTenantByEmail(ctx, "second@x.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected tenant insert to roll back, got %v", err)
	}
}

func TestSQLiteCreateAPIKeyQuota(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tenant := testTenant("q@x.com")
	if err := s.CreateTenant(ctx, tenant, nil); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.CreateAPIKey(ctx, testKey(tenant.ID, "snt_cccccccc", fmt.Sprintf("h%d", i)), 2); err != nil {
			t.Fatalf("create key %d: %v", i, err)
		}
	}
	if err := s.CreateAPIKey(ctx, testKey(tenant.ID, "snt_cccccccc", "h-over"), 2); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := s.CreateAPIKey(ctx, testKey(uuid.New(), "snt_cccccccc", "h-orphan"), 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestSQLiteCreateAPIKeyQuotaConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tenant := testTenant("race@x.com")
	if err := s.CreateTenant(ctx, tenant, nil); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateAPIKey(ctx, testKey(tenant.ID, "snt_dddddddd", fmt.Sprintf("race-%d", i)), 5)
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else if !errors.Is(err, ErrQuotaExceeded) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if created != 5 {
		t.Fatalf("expected exactly 5 keys created, got %d", created)
	}
}

func TestSQLiteFindActiveKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	active := testTenant("active@x.com")
	suspended := testTenant("suspended@x.com")
	deleted := testTenant("deleted@x.com")
	for _, tn := range []Tenant{active, suspended, deleted} {
		if err := s.CreateTenant(ctx, tn, nil); err != nil {
			t.Fatalf("create tenant: %v", err)
		}
	}

	const prefix = "snt_eeeeeeee"
	good := testKey(active.ID, prefix, "good")
	revoked := testKey(active.ID, prefix, "revoked")
	past := baseTime.Add(-time.Minute)
	expired := testKey(active.ID, prefix, "expired")
	expired.ExpiresAt = &past
	future := baseTime.Add(time.Hour)
	notYet := testKey(active.ID, prefix, "not-yet-expired")
	notYet.ExpiresAt = &future
	other := testKey(active.ID, "snt_ffffffff", "other-prefix")
	ofSuspended := testKey(suspended.ID, prefix, "suspended")
	ofDeleted := testKey(deleted.ID, prefix, "deleted")

	for _, k := range []APIKey{good, revoked, expired, notYet, other, ofSuspended, ofDeleted} {
		if err := s.CreateAPIKey(ctx, k, 0); err != nil {
			t.Fatalf("create key %s: %v", k.KeyHash, err)
		}
	}
	if err := s.DeactivateAPIKey(ctx, active.ID, revoked.ID, baseTime); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := s.SetTenantStatus(ctx, suspended.ID, StatusSuspended, baseTime); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if err := s.SoftDeleteTenant(ctx, deleted.ID, baseTime); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	candidates, err := s.FindActiveKeysByPrefix(ctx, prefix, baseTime)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	got := map[string]bool{}
	for _, c := range candidates {
		got[c.KeyHash] = true
		if c.Tenant.ID != active.ID || c.Tenant.Email != "active@x.com" || c.Tenant.Status != StatusActive {
			t.Fatalf("unexpected candidate tenant %+v", c.Tenant)
		}
	}
	if len(got) != 2 || !got["good"] || !got["not-yet-expired"] {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestSQLiteDeactivateAPIKey(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	owner := testTenant("owner@x.com")
	intruder := testTenant("intruder@x.com")
	key := testKey(owner.ID, "snt_gggggggg", "owned")
	if err := s.CreateTenant(ctx, owner, &key); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	if err := s.CreateTenant(ctx, intruder, nil); err != nil {
		t.Fatalf("create intruder: %v", err)
	}

	if err := s.DeactivateAPIKey(ctx, intruder.ID, key.ID, baseTime); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected cross-tenant deactivate to fail, got %v", err)
	}
	if k, _ := s.GetAPIKeyByID(ctx, key.ID); !k.IsActive {
		t.Fatalf("key must stay active after cross-tenant attempt")
	}

	if err := s.DeactivateAPIKey(ctx, owner.ID, key.ID, baseTime); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := s.DeactivateAPIKey(ctx, owner.ID, key.ID, baseTime.Add(time.Hour)); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}

	k, err := s.GetAPIKeyByID(ctx, key.ID)
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if k.IsActive || k.RevokedAt == nil || !k.RevokedAt.Equal(baseTime) {
		t.Fatalf("expected first revocation time kept, got active=%v revoked=%v", k.IsActive, k.RevokedAt)
	}

	keys, err := s.ListActiveKeys(ctx, owner.ID)
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no active keys, got %d err=%v", len(keys), err)
	}
	if err := s.DeactivateAPIKey(ctx, owner.ID, uuid.New(), baseTime); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestSQLiteListTouchAndUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tenant := testTenant("list@x.com")
	first := testKey(tenant.ID, "snt_hhhhhhhh", "first")
	if err := s.CreateTenant(ctx, tenant, &first); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	second := testKey(tenant.ID, "snt_iiiiiiii", "second")
	second.Name = "ci"
	second.CreatedAt = baseTime.Add(time.Minute)
	if err := s.CreateAPIKey(ctx, second, 5); err != nil {
		t.Fatalf("create key: %v", err)
	}

	keys, err := s.ListActiveKeys(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0].ID != first.ID || keys[1].Name != "ci" {
		t.Fatalf("unexpected keys %+v", keys)
	}

	used := baseTime.Add(2 * time.Minute)
	if err := s.TouchAPIKey(ctx, second.ID, used); err != nil {
		t.Fatalf("touch: %v", err)
	}
	k, _ := s.GetAPIKeyByID(ctx, second.ID)
	if k.LastUsedAt == nil || !k.LastUsedAt.Equal(used) {
		t.Fatalf("expected last_used_at %v, got %v", used, k.LastUsedAt)
	}

	logs := []UsageLog{
		{TenantID: tenant.ID, Endpoint: "/internal/verify-key", StatusCode: 200, ResponseMS: 12, LoggedAt: used},
		{TenantID: tenant.ID, Endpoint: "/tenants/api-keys", StatusCode: 201, ResponseMS: 40, LoggedAt: used},
	}
	if err := s.InsertUsageLogs(ctx, logs); err != nil {
		t.Fatalf("insert usage: %v", err)
	}
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM usage_logs WHERE tenant_id = ?`, tenant.ID); err != nil {
		t.Fatalf("count usage: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 usage logs, got %d", count)
	}
}

func TestSQLiteSoftDeleteKeepsEmailReserved(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	tenant := testTenant("gone@x.com")
	if err := s.CreateTenant(ctx, tenant, nil); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if err := s.SoftDeleteTenant(ctx, tenant.ID, baseTime); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := s.GetTenantByID(ctx, tenant.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted tenant to resolve as missing, got %v", err)
	}
	if err := s.SoftDeleteTenant(ctx, tenant.ID, baseTime); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second delete to report ErrNotFound, got %v", err)
	}
	if err := s.CreateTenant(ctx, testTenant("gone@x.com"), nil); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected email to stay reserved, got %v", err)
	}
	if err := s.SetTenantStatus(ctx, tenant.ID, "BOGUS", baseTime); err == nil {
		t.Fatalf("expected invalid status to be rejected")
	}
}
