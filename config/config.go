// Package config loads dashboard settings from .env, YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rileyseaburg/quantum-fox/broker"
	"github.com/rileyseaburg/quantum-fox/candles"
	"github.com/rileyseaburg/quantum-fox/order"
)

const (
	DefaultListen         = "127.0.0.1:8501"
	DefaultProvider       = "yahoo"
	DefaultSignalPeriod   = "6mo"
	DefaultSignalInterval = "1d"
)

// Config holds all application configuration
type Config struct {
	Listen string `yaml:"listen"`
	// AllowedOrigins may call /api/dashboard cross-origin, orders included
	AllowedOrigins []string `yaml:"allowed_origins"`
	Data           struct {
		Provider     string        `yaml:"provider"` // yahoo or alpaca
		YahooBaseURL string        `yaml:"yahoo_base_url"`
		Timeout      time.Duration `yaml:"timeout"`
		AlpacaFeed   string        `yaml:"alpaca_feed"`
	} `yaml:"data"`
	Signal struct {
		Period   string `yaml:"period"`
		Interval string `yaml:"interval"`
	} `yaml:"signal"`
	Orders struct {
		ExitMode string `yaml:"exit_mode"` // independent or oco
	} `yaml:"orders"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`

	// Server-side fallback keys, read from the environment only
	PaperCredentials broker.Credentials `yaml:"-"`
	LiveCredentials  broker.Credentials `yaml:"-"`
}

// Load reads .env (if present) and the YAML file at path (if present),
// applies environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("QF_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("QF_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("QF_DATA_PROVIDER"); v != "" {
		c.Data.Provider = v
	}
	if v := os.Getenv("QF_EXIT_MODE"); v != "" {
		c.Orders.ExitMode = v
	}
	if v := os.Getenv("QF_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("QF_LOG_FILE"); v != "" {
		c.Log.File = v
	}

	c.PaperCredentials = broker.Credentials{
		APIKey:    os.Getenv("PAPER_ALPACA_API_KEY"),
		APISecret: os.Getenv("PAPER_ALPACA_SECRET_KEY"),
	}
	c.LiveCredentials = broker.Credentials{
		APIKey:    os.Getenv("LIVE_ALPACA_API_KEY"),
		APISecret: os.Getenv("LIVE_ALPACA_SECRET_KEY"),
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Data.Provider == "" {
		c.Data.Provider = DefaultProvider
	}
	if c.Data.YahooBaseURL == "" {
		c.Data.YahooBaseURL = candles.DefaultYahooBaseURL
	}
	if c.Data.Timeout == 0 {
		c.Data.Timeout = 30 * time.Second
	}
	if c.Data.AlpacaFeed == "" {
		c.Data.AlpacaFeed = "iex"
	}
	if c.Signal.Period == "" {
		c.Signal.Period = DefaultSignalPeriod
	}
	if c.Signal.Interval == "" {
		c.Signal.Interval = DefaultSignalInterval
	}
	if c.Orders.ExitMode == "" {
		c.Orders.ExitMode = string(order.Independent)
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 50
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 14
	}
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Data.Provider {
	case "yahoo", "alpaca":
	default:
		return fmt.Errorf("data.provider must be yahoo or alpaca, got %q", c.Data.Provider)
	}
	if _, err := order.ParseExitMode(c.Orders.ExitMode); err != nil {
		return fmt.Errorf("orders.exit_mode: %w", err)
	}
	signalReq := candles.Request{Symbol: "SPY", Period: c.Signal.Period, Interval: c.Signal.Interval}
	if _, err := signalReq.Normalize(); err != nil {
		return fmt.Errorf("signal: %w", err)
	}
	if c.Data.Timeout < 0 {
		return fmt.Errorf("data.timeout must not be negative")
	}
	return nil
}

// ExitMode returns the parsed exit mode; call after Validate
func (c *Config) ExitMode() order.ExitMode {
	mode, _ := order.ParseExitMode(c.Orders.ExitMode)
	return mode
}

// DefaultCredentials returns the server-side keys for env, if any
func (c *Config) DefaultCredentials(env broker.Environment) broker.Credentials {
	if env == broker.Live {
		return c.LiveCredentials
	}
	return c.PaperCredentials
}
