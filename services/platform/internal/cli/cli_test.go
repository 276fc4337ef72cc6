package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	base "github.com/AfshinJalili/sentinel/libs/config"
	"github.com/AfshinJalili/sentinel/libs/logging"
	"github.com/AfshinJalili/sentinel/services/platform/internal/config"
	"github.com/AfshinJalili/sentinel/services/platform/internal/security"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
)

func testConfig(t *testing.T, env string) *config.Config {
	t.Helper()
	return &config.Config{
		App:         base.AppConfig{ServiceName: "platformctl", Env: env},
		StoreDriver: storage.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "platform.db"),
		Argon2:      security.Argon2Params{Memory: 64 * 1024, Iterations: 2, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Keys:        config.KeyConfig{Tag: "snt_", MaxActiveKeys: 5},
	}
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&app{out: &out, cfg: cfg, logger: logging.Discard()})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func showTenant(t *testing.T, cfg *config.Config, email string) service.Profile {
	t.Helper()
	out, err := run(t, cfg, "tenant", "show", "--email", email)
	if err != nil {
		t.Fatalf("tenant show: %v", err)
	}
	var p service.Profile
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("decode profile %q: %v", out, err)
	}
	return p
}

func TestSeedAndTenantLifecycle(t *testing.T) {
	cfg := testConfig(t, "test")

	out, err := run(t, cfg, "seed", "--email", "demo@acme.io")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !strings.Contains(out, "API key: snt_") {
		t.Fatalf("expected raw key in seed output, got %q", out)
	}

	again, err := run(t, cfg, "seed", "--email", "demo@acme.io")
	if err != nil || !strings.Contains(again, "already exists") {
		t.Fatalf("expected idempotent seed, out=%q err=%v", again, err)
	}

	profile := showTenant(t, cfg, "demo@acme.io")
	if profile.Status != storage.StatusActive {
		t.Fatalf("expected active tenant, got %s", profile.Status)
	}
	id := profile.ID.String()

	if _, err := run(t, cfg, "tenant", "suspend", id); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if got := showTenant(t, cfg, "demo@acme.io").Status; got != storage.StatusSuspended {
		t.Fatalf("expected suspended, got %s", got)
	}

	if _, err := run(t, cfg, "tenant", "status", id, "closed"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got := showTenant(t, cfg, "demo@acme.io").Status; got != storage.StatusClosed {
		t.Fatalf("expected closed, got %s", got)
	}

	if _, err := run(t, cfg, "tenant", "activate", id); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := run(t, cfg, "tenant", "delete", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, cfg, "tenant", "show", "--id", id); err == nil || err.Error() != "tenant not found" {
		t.Fatalf("expected deleted tenant to be gone, got %v", err)
	}
}

func TestTenantCommandErrors(t *testing.T) {
	cfg := testConfig(t, "test")
	if _, err := run(t, cfg, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if _, err := run(t, cfg, "tenant", "show"); err == nil {
		t.Fatalf("expected show without selector to fail")
	}
	if _, err := run(t, cfg, "tenant", "suspend", "not-a-uuid"); err == nil {
		t.Fatalf("expected invalid id to fail")
	}
	if _, err := run(t, cfg, "tenant", "status", "00000000-0000-0000-0000-000000000001", "BANNED"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
	if _, err := run(t, cfg, "tenant", "suspend", "00000000-0000-0000-0000-000000000001"); err == nil || err.Error() != "tenant not found" {
		t.Fatalf("expected tenant not found, got %v", err)
	}
}

func TestSeedRefusedOutsideDev(t *testing.T) {
	cfg := testConfig(t, "prod")
	if _, err := run(t, cfg, "seed"); err == nil {
		t.Fatalf("expected seed to be refused in prod")
	}
}
