package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dimmerd.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAndValidatesDefaults(t *testing.T) {
	path := writeConfig(t, `
device_id: dimmer-01
mqtt:
  broker: tcp://localhost:1883
engine:
  simulate: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Channels != 4 {
		t.Fatalf("channels = %d, want default 4", cfg.Channels)
	}
	if cfg.Engine.HalfCycleUs == 0 {
		t.Fatal("expected engine defaults to be filled in")
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  broker: tcp://localhost:1883
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error for missing device_id")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "device_id: [unterminated")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected a parse error for malformed YAML")
	}
}
