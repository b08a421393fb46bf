package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "protoctl.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[general]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.General.PollInterval.Duration != time.Second {
		t.Fatalf("poll interval default = %v, want 1s", cfg.General.PollInterval.Duration)
	}
	if cfg.General.VisibilityTimeout.Duration != 30*time.Minute {
		t.Fatalf("visibility timeout default = %v, want 30m", cfg.General.VisibilityTimeout.Duration)
	}
	if cfg.Queue.Backend != "memory" {
		t.Fatalf("queue backend default = %q, want memory", cfg.Queue.Backend)
	}
}

func TestLoadRejectsRedisBackendWithoutURL(t *testing.T) {
	path := writeConfig(t, `
[queue]
backend = "redis"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for redis backend without redis_url")
	}
}

func TestLoadRejectsUnknownEngineKind(t *testing.T) {
	path := writeConfig(t, `
[engines.codex]
kind = "carrier-pigeon"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown engine kind")
	}
}

func TestLoadValidatesEngineRequiredFields(t *testing.T) {
	path := writeConfig(t, `
[engines.codex]
kind = "cli"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for cli engine missing command")
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("45s")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if d.Duration != 45*time.Second {
		t.Fatalf("got %v", d.Duration)
	}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "45s" {
		t.Fatalf("got %q", text)
	}
}

func TestValidateReloadRejectsDBPathChange(t *testing.T) {
	oldPath := writeConfig(t, `
[store]
db_path = "a.db"
`)
	newPath := writeConfig(t, `
[store]
db_path = "b.db"
`)
	oldCfg, err := Load(oldPath)
	if err != nil {
		t.Fatalf("Load old: %v", err)
	}
	newCfg, err := Load(newPath)
	if err != nil {
		t.Fatalf("Load new: %v", err)
	}
	if err := ValidateReload(oldCfg, newCfg); err == nil {
		t.Fatal("expected db_path change to be rejected")
	}
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, `
[general]
log_level = "info"
`)
	mgr, err := LoadManager(path)
	if err != nil {
		t.Fatalf("LoadManager: %v", err)
	}
	if mgr.Get().General.LogLevel != "info" {
		t.Fatalf("unexpected initial log level: %q", mgr.Get().General.LogLevel)
	}

	if err := os.WriteFile(path, []byte(`
[general]
log_level = "debug"
`), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if err := mgr.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if mgr.Get().General.LogLevel != "debug" {
		t.Fatalf("reload did not take effect: %q", mgr.Get().General.LogLevel)
	}
}
