package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "platform-api" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Fatalf("expected read timeout 5s, got %s", cfg.HTTP.ReadTimeout)
	}
	if !cfg.IsDev() {
		t.Fatalf("expected dev env by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("service_name: sentinel-test\nenv: prod\nhttp:\n  port: 9090\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServiceName != "sentinel-test" {
		t.Fatalf("expected service name from file, got %q", cfg.ServiceName)
	}
	if cfg.HTTP.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.IsDev() {
		t.Fatalf("expected prod env")
	}
}

func TestLoadEnvOverridesAndValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	t.Setenv("SENTINEL_HTTP_PORT", "9443")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr() != "0.0.0.0:9443" {
		t.Fatalf("unexpected addr %q", cfg.HTTP.Addr())
	}

	t.Setenv("SENTINEL_HTTP_PORT", "70000")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected out-of-range port to fail")
	}
}
