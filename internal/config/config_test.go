package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultInstance: "work"}
	cfg.Daemon.Endpoint = "ws://localhost:4000/socket"
	cfg.Daemon.SettleDelay = Duration{5 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "work" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "work")
	}
	if loaded.Daemon.Endpoint != "ws://localhost:4000/socket" {
		t.Errorf("Endpoint = %q", loaded.Daemon.Endpoint)
	}
	if loaded.Daemon.SettleDelay.Duration != 5*time.Second {
		t.Errorf("SettleDelay = %v, want 5s", loaded.Daemon.SettleDelay)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Daemon != Defaults() {
		t.Errorf("daemon = %+v, want defaults", cfg.Daemon)
	}
}

func TestDurationStrings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
default_instance = "shop"

[daemon]
sync_timeout = "45s"
switch_step_delay = "250ms"
dedup_capacity = 50
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Daemon.SyncTimeout.Duration != 45*time.Second {
		t.Errorf("SyncTimeout = %v, want 45s", cfg.Daemon.SyncTimeout)
	}
	if cfg.Daemon.SwitchStepDelay.Duration != 250*time.Millisecond {
		t.Errorf("SwitchStepDelay = %v, want 250ms", cfg.Daemon.SwitchStepDelay)
	}
	if cfg.Daemon.DedupCapacity != 50 {
		t.Errorf("DedupCapacity = %d, want 50", cfg.Daemon.DedupCapacity)
	}
	// Unset fields fall back.
	if cfg.Daemon.HTTPAddr != Defaults().HTTPAddr {
		t.Errorf("HTTPAddr = %q, want default", cfg.Daemon.HTTPAddr)
	}
}

func TestBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[daemon]\nsettle_delay = \"soon\"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed duration")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultInstance: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
