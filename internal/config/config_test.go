package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Market.FeeMultiplier != 1.10 {
		t.Errorf("FeeMultiplier = %v, want 1.10", cfg.Market.FeeMultiplier)
	}
	if cfg.Market.JackpotRatio != 0.5 {
		t.Errorf("JackpotRatio = %v, want 0.5", cfg.Market.JackpotRatio)
	}
	if cfg.Ledger.Spender != "share-ledger" {
		t.Errorf("Spender = %q, want share-ledger", cfg.Ledger.Spender)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Log.Format)
	}
	if cfg.CacheTTL() != 60*time.Second {
		t.Errorf("CacheTTL = %v, want 60s", cfg.CacheTTL())
	}
	if cfg.RoundTick() != time.Second {
		t.Errorf("RoundTick = %v, want 1s", cfg.RoundTick())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	yaml := `
server:
  port: 9000
ledger:
  base_url: "http://ledger:7000"
market:
  fee_multiplier: 1.25
storage:
  cache_ttl_seconds: 120
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Ledger.BaseURL != "http://ledger:7000" {
		t.Errorf("BaseURL = %q", cfg.Ledger.BaseURL)
	}
	if cfg.Market.FeeMultiplier != 1.25 {
		t.Errorf("FeeMultiplier = %v, want 1.25", cfg.Market.FeeMultiplier)
	}
	if cfg.CacheTTL() != 2*time.Minute {
		t.Errorf("CacheTTL = %v, want 2m", cfg.CacheTTL())
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
	// Unset fields still get defaults.
	if cfg.Market.JackpotRatio != 0.5 {
		t.Errorf("JackpotRatio = %v, want default 0.5", cfg.Market.JackpotRatio)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("LEDGER_URL", "http://override:7000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Ledger.BaseURL != "http://override:7000" {
		t.Errorf("BaseURL = %q", cfg.Ledger.BaseURL)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Log.Level)
	}
}

func TestLoad_BadYAMLRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
