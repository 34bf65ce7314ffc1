package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWARMD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.NATS.Port != 4222 {
		t.Errorf("expected default nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.Swarm.Topology != "adaptive" {
		t.Errorf("expected default topology adaptive, got %s", cfg.Swarm.Topology)
	}
	if cfg.Swarm.FreezePolicy != FreezeQueue {
		t.Errorf("expected default freeze policy queue, got %s", cfg.Swarm.FreezePolicy)
	}
	if cfg.Monitor.WindowSize != 512 {
		t.Errorf("expected default window size 512, got %d", cfg.Monitor.WindowSize)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmd.yaml")
	data := `
nats:
  port: 5333
swarm:
  topology: ring
  freeze_policy: reject
  drain_timeout: 3s
web:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SWARMD_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.NATS.Port != 5333 {
		t.Errorf("expected nats port 5333, got %d", cfg.NATS.Port)
	}
	if cfg.Swarm.Topology != "ring" {
		t.Errorf("expected topology ring, got %s", cfg.Swarm.Topology)
	}
	if cfg.Swarm.FreezePolicy != FreezeReject {
		t.Errorf("expected freeze policy reject, got %s", cfg.Swarm.FreezePolicy)
	}
	if cfg.Swarm.DrainTimeout != 3*time.Second {
		t.Errorf("expected drain timeout 3s, got %s", cfg.Swarm.DrainTimeout)
	}
	if cfg.Web.Enabled {
		t.Error("expected web disabled")
	}
	// Unset values keep defaults.
	if cfg.Store.Path != "data/swarmd.db" {
		t.Errorf("expected default store path, got %s", cfg.Store.Path)
	}
}

func TestEnvExpansion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmd.yaml")
	data := `
store:
  path: ${SWARMD_TEST_DATA}/history.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SWARMD_CONFIG", path)
	t.Setenv("SWARMD_TEST_DATA", "/tmp/swarmtest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Store.Path != "/tmp/swarmtest/history.db" {
		t.Errorf("expected expanded store path, got %s", cfg.Store.Path)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SWARMD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SWARMD_NATS_PORT", "6222")
	t.Setenv("SWARMD_TOPOLOGY", "star")
	t.Setenv("SWARMD_WEB_PASSWORD", "hunter2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.NATS.Port != 6222 {
		t.Errorf("expected nats port 6222, got %d", cfg.NATS.Port)
	}
	if cfg.Swarm.Topology != "star" {
		t.Errorf("expected topology star, got %s", cfg.Swarm.Topology)
	}
	if cfg.Web.Auth != "hunter2" {
		t.Errorf("expected web auth override, got %q", cfg.Web.Auth)
	}
}

func TestInvalidFreezePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarmd.yaml")
	data := `
swarm:
  freeze_policy: explode
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SWARMD_CONFIG", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid freeze policy")
	}
}
