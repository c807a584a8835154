package bot

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
telegram:
  token: "123:abc"
report:
  channel_id: -100123
  reviewer: "@lead"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.RunMode != "longpoll" {
		t.Fatalf("run_mode = %q", cfg.Telegram.RunMode)
	}
	if cfg.Workflow.DebounceMS != 1500 {
		t.Fatalf("debounce_ms = %d", cfg.Workflow.DebounceMS)
	}
	if cfg.Workflow.MenuTTLSeconds != 60 {
		t.Fatalf("menu_ttl_seconds = %d", cfg.Workflow.MenuTTLSeconds)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("storage driver = %q", cfg.Storage.Driver)
	}
	if cfg.CoreConfig() == nil {
		t.Fatal("core config carrier returned nil")
	}
}

func TestLoadRejectsMissingReportChannel(t *testing.T) {
	body := `
telegram:
  token: "123:abc"
report:
  reviewer: "@lead"
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for missing report.channel_id")
	}
}

func TestLoadValidatesPostgresStorage(t *testing.T) {
	body := minimalYAML + `
storage:
  driver: postgres
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for postgres storage without host")
	}

	body = minimalYAML + `
storage:
  driver: postgres
  postgres:
    host: localhost
    name: dutybot
`
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != StoragePostgres {
		t.Fatalf("storage driver = %q", cfg.Storage.Driver)
	}
}

func TestLoadRejectsUnknownStorageDriver(t *testing.T) {
	body := minimalYAML + `
storage:
  driver: redis
`
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
