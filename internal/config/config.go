// Package config loads the engine configuration from a YAML file with
// environment-variable overrides (a .env file is honored when present).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Storage StorageConfig `yaml:"storage"`
	Market  MarketConfig  `yaml:"market"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LedgerConfig points at the external share-ledger gateway.
type LedgerConfig struct {
	BaseURL string `yaml:"base_url"` // empty = in-memory dev ledger
	Spender string `yaml:"spender"`  // transfer authority the allowance check runs against
}

// StorageConfig controls catalog persistence and caching.
type StorageConfig struct {
	DatabaseURL     string `yaml:"database_url"` // empty = in-memory catalog
	RedisURL        string `yaml:"redis_url"`    // empty = no cache layer
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// MarketConfig holds the trading parameters.
type MarketConfig struct {
	FeeMultiplier    float64 `yaml:"fee_multiplier"`     // buy-side, e.g. 1.10
	JackpotRatio     float64 `yaml:"jackpot_ratio"`      // implied jackpot share of raw pool value
	RoundTickSeconds int     `yaml:"round_tick_seconds"` // countdown broadcast cadence
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path and applies environment overrides on top.
// A missing file is not an error: defaults plus environment cover the dev
// case where no config file ships.
func Load(path string) (*Config, error) {
	// Load .env if present (silently skipped otherwise).
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// CacheTTL returns the catalog cache TTL as a time.Duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Storage.CacheTTLSeconds) * time.Second
}

// RoundTick returns the countdown broadcast cadence as a time.Duration.
func (c *Config) RoundTick() time.Duration {
	return time.Duration(c.Market.RoundTickSeconds) * time.Second
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// applyEnvOverrides overwrites values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LEDGER_URL"); v != "" {
		cfg.Ledger.BaseURL = v
	}
	if v := os.Getenv("LEDGER_SPENDER"); v != "" {
		cfg.Ledger.Spender = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills required values with sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Ledger.Spender == "" {
		cfg.Ledger.Spender = "share-ledger"
	}
	if cfg.Storage.CacheTTLSeconds <= 0 {
		cfg.Storage.CacheTTLSeconds = 60
	}
	if cfg.Market.FeeMultiplier <= 0 {
		cfg.Market.FeeMultiplier = 1.10
	}
	if cfg.Market.JackpotRatio <= 0 {
		cfg.Market.JackpotRatio = 0.5
	}
	if cfg.Market.RoundTickSeconds <= 0 {
		cfg.Market.RoundTickSeconds = 1
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
