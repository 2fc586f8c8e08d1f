package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadConfigRejectsUnknownField(t *testing.T) {
	cfgPath := writeConfig(t, `{
  "engine": {
    "exec_timeout_ms": 500,
    "unknown_field": 1
  }
}`)

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "unknown field") {
		t.Fatalf("expected unknown field error, got: %v", err)
	}
}

func TestLoadConfigRejectsTrailingJSONContent(t *testing.T) {
	cfgPath := writeConfig(t, `{"engine":{"exec_timeout_ms":500}}{"extra":true}`)

	_, err := LoadConfig(cfgPath)
	if err == nil {
		t.Fatalf("expected trailing json content error")
	}
	if !strings.Contains(err.Error(), "trailing JSON content") {
		t.Fatalf("expected trailing JSON content error, got: %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Fleet.LogLimit != 100 || cfg.Fleet.ConnectAttemptMS != 500 {
		t.Fatalf("defaults not applied: %+v", cfg.Fleet)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("default config should validate, got %v", errs)
	}
}

func TestLoadConfigOverlaysFileAndEnv(t *testing.T) {
	cfgPath := writeConfig(t, `{
  "engine": {"instance_policy": "first"},
  "fleet": {"log_limit": 25},
  "gateway": {"port": 9000}
}`)
	t.Setenv("BOTSIM_GATEWAY_PORT", "9100")
	t.Setenv("BOTSIM_CHANNELS_TELEGRAM_ALLOW_FROM", "1,2")

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Engine.InstancePolicy != "first" {
		t.Fatalf("instance_policy mismatch: %q", cfg.Engine.InstancePolicy)
	}
	if cfg.Fleet.LogLimit != 25 {
		t.Fatalf("log_limit mismatch: %d", cfg.Fleet.LogLimit)
	}
	if cfg.Gateway.Port != 9100 {
		t.Fatalf("env should win over file, got port %d", cfg.Gateway.Port)
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 2 || got[1] != "2" {
		t.Fatalf("allow_from mismatch: %v", got)
	}
	if cfg.ListenAddr() != "127.0.0.1:9100" {
		t.Fatalf("listen addr mismatch: %s", cfg.ListenAddr())
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Fleet.CrashProbability = 0
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if loaded.Fleet.CrashProbability != 0 {
		t.Fatalf("crash_probability not persisted: %v", loaded.Fleet.CrashProbability)
	}
}
