package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8420" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Storage != StorageFile {
		t.Errorf("storage = %q", cfg.Storage)
	}
	if cfg.MaxEvents != 10000 || cfg.MaxTelemetry != 10000 {
		t.Errorf("caps = %d/%d", cfg.MaxEvents, cfg.MaxTelemetry)
	}
	if cfg.HeartbeatTimeout() != 90*time.Second {
		t.Errorf("heartbeat timeout = %v", cfg.HeartbeatTimeout())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
storage: sqlite
max_events: 500
heartbeat_timeout_seconds: 30
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Storage != StorageSQLite {
		t.Errorf("storage = %q", cfg.Storage)
	}
	if cfg.MaxEvents != 500 {
		t.Errorf("max_events = %d", cfg.MaxEvents)
	}
	// Unset fields keep their defaults.
	if cfg.MaxTelemetry != 10000 {
		t.Errorf("max_telemetry = %d", cfg.MaxTelemetry)
	}
	if cfg.HeartbeatTimeout() != 30*time.Second {
		t.Errorf("heartbeat timeout = %v", cfg.HeartbeatTimeout())
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "listne: \":9000\"\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadValidation(t *testing.T) {
	path := writeConfig(t, "storage: floppy\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown storage backend")
	}

	path = writeConfig(t, "max_events: -5\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative cap")
	}
}

func TestEnvOverridesAdminKey(t *testing.T) {
	path := writeConfig(t, "admin_key: from-file\n")
	t.Setenv(EnvAPIKey, "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminKey != "from-env" {
		t.Errorf("admin key = %q, want env override", cfg.AdminKey)
	}

	t.Setenv(EnvAPIKey, "")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AdminKey != "from-file" {
		t.Errorf("admin key = %q, want file value", cfg.AdminKey)
	}
}
