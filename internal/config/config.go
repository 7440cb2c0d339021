// Package config loads the exchange's YAML configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the exchange process needs at startup.
type Config struct {
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`

	Book struct {
		PriceFloor   uint64 `yaml:"price_floor"`
		PriceCeiling uint64 `yaml:"price_ceiling"`
	} `yaml:"book"`

	Queues struct {
		ExecReportRingSize int `yaml:"exec_report_ring_size"`
		TradeRingSize      int `yaml:"trade_ring_size"`
		LogFlushHighWater  int `yaml:"log_flush_high_water"`
	} `yaml:"queues"`

	Logging struct {
		Level       string `yaml:"level"`
		Dir         string `yaml:"dir"`
		SyncOnWrite bool   `yaml:"sync_on_write"`
	} `yaml:"logging"`
}

// Default returns a Config with reasonable values for local development and
// tests, without reading a file.
func Default() *Config {
	var cfg Config
	cfg.Server.ListenAddr = ":9090"
	cfg.Book.PriceFloor = 1
	cfg.Book.PriceCeiling = 1_000_000
	cfg.Queues.ExecReportRingSize = 4096
	cfg.Queues.TradeRingSize = 4096
	cfg.Queues.LogFlushHighWater = 256
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// Load reads and parses path, falling back to Default()'s values for any
// field the file omits. A field the file sets explicitly, even to zero,
// overrides the default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// failures much later (an inverted price band, a zero ring size).
func (c *Config) Validate() error {
	if c.Book.PriceCeiling <= c.Book.PriceFloor {
		return fmt.Errorf("book.price_ceiling (%d) must exceed book.price_floor (%d)",
			c.Book.PriceCeiling, c.Book.PriceFloor)
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr must be set")
	}
	if c.Queues.ExecReportRingSize <= 0 || c.Queues.TradeRingSize <= 0 {
		return fmt.Errorf("queues.exec_report_ring_size and queues.trade_ring_size must be positive")
	}
	return nil
}
