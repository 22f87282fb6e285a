package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
// Sensitive values are overlaid from environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Listen string `yaml:"listen"` // e.g. ":8080"
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
		Format string `yaml:"format"` // "text", "json"
	} `yaml:"logging"`

	Exchange struct {
		RestURL     string `yaml:"rest_url"`
		WsURL       string `yaml:"ws_url"`
		AccessKey   string `yaml:"access_key"`
		SecretKey   string `yaml:"secret_key"`
		Passphrase  string `yaml:"passphrase"`
		TakerFeeBps int64  `yaml:"taker_fee_bps"` // estimated taker fee, basis points
		Symbols     []string `yaml:"symbols"`     // symbols the quote feed subscribes to
	} `yaml:"exchange"`

	Risk struct {
		MaxLeverage     int64 `yaml:"max_leverage"`
		CooldownSeconds int64 `yaml:"cooldown_seconds"`
	} `yaml:"risk"`

	Execution struct {
		MaxAttempts        int   `yaml:"max_attempts"`
		BaseDelayMs        int64 `yaml:"base_delay_ms"`
		MaxDelayMs         int64 `yaml:"max_delay_ms"`
		FillTimeoutSeconds int64 `yaml:"fill_timeout_seconds"`
	} `yaml:"execution"`

	Reconcile struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
	} `yaml:"reconcile"`

	Storage struct {
		Path string `yaml:"path"` // sqlite database file
	} `yaml:"storage"`

	// Accounts are seeded into storage on startup when missing. Existing
	// rows are never overwritten.
	Accounts []AccountSeed `yaml:"accounts"`
}

// AccountSeed declares one trading account in the config file.
type AccountSeed struct {
	ID             string `yaml:"id"`
	Paper          bool   `yaml:"paper"`
	Leverage       int64  `yaml:"leverage"`
	MaxPositionUsd string `yaml:"max_position_usd"` // decimal string, e.g. "10000"
}

// LoadConfig reads configuration from a yaml file and applies defaults and
// the environment overlay.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverlay()
	return &cfg, nil
}

// DefaultConfig returns a config with every default applied, for tests and
// for running without a config file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Risk.MaxLeverage == 0 {
		c.Risk.MaxLeverage = 25
	}
	if c.Risk.CooldownSeconds == 0 {
		c.Risk.CooldownSeconds = 60
	}
	if c.Execution.MaxAttempts == 0 {
		c.Execution.MaxAttempts = 4
	}
	if c.Execution.BaseDelayMs == 0 {
		c.Execution.BaseDelayMs = 500
	}
	if c.Execution.MaxDelayMs == 0 {
		c.Execution.MaxDelayMs = 10_000
	}
	if c.Execution.FillTimeoutSeconds == 0 {
		c.Execution.FillTimeoutSeconds = 30
	}
	if c.Reconcile.IntervalSeconds == 0 {
		c.Reconcile.IntervalSeconds = 60
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/agent.db"
	}
}

// applyEnvOverlay replaces API credentials from environment variables when
// present, so secrets never have to live in the yaml file.
func (c *Config) applyEnvOverlay() {
	if v := os.Getenv("EXCHANGE_ACCESS_KEY"); v != "" {
		c.Exchange.AccessKey = v
	}
	if v := os.Getenv("EXCHANGE_SECRET_KEY"); v != "" {
		c.Exchange.SecretKey = v
	}
	if v := os.Getenv("EXCHANGE_PASSPHRASE"); v != "" {
		c.Exchange.Passphrase = v
	}
}

// CooldownInterval returns the risk cooldown as a duration.
func (c *Config) CooldownInterval() time.Duration {
	return time.Duration(c.Risk.CooldownSeconds) * time.Second
}

// ReconcileInterval returns the reconciliation loop period.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Reconcile.IntervalSeconds) * time.Second
}

// FillTimeout returns the bound on waiting for a live fill confirmation.
func (c *Config) FillTimeout() time.Duration {
	return time.Duration(c.Execution.FillTimeoutSeconds) * time.Second
}
