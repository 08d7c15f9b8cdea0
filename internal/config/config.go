// Package config loads and validates the node configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the node configuration.
type Config struct {
	// Protocol settings
	Group        string `json:"group"`
	RangeBackend string `json:"range_backend"`
	RingSize     int    `json:"ring_size"`
	Context      string `json:"context"`

	// Storage
	StoreBackend string `json:"store_backend"`
	StorePath    string `json:"store_path"`
	SnapshotPath string `json:"snapshot_path"`
	KeyDir       string `json:"key_dir"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Security
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`

	// API
	ListenAddr string  `json:"listen_addr"`
	RateLimit  float64 `json:"rate_limit"`
	RateBurst  int     `json:"rate_burst"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Group:        "zq",
		RangeBackend: "stub",
		RingSize:     5,
		Context:      "mockmonero-v1",
		StoreBackend: "memory",
		StorePath:    "data/ledger",
		SnapshotPath: "data/ledger.json",
		KeyDir:       "keys",
		LogLevel:     "info",
		LogFile:      "logs/ctnode.log",
		EnableAudit:  true,
		AuditLogPath: "logs/audit.log",
		ListenAddr:   "127.0.0.1:8545",
		RateLimit:    5,
		RateBurst:    10,
	}
}

// Load reads path, or writes and returns the defaults when it does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		cfg := DefaultConfig()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		return cfg, cfg.Validate()
	}

	cfg := DefaultConfig()
	if err := Save(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as indented JSON.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Validate checks every field that has a closed set of values or a bound.
func (c *Config) Validate() error {
	switch c.Group {
	case "zq", "bn254":
	default:
		return fmt.Errorf("group must be zq or bn254, got %q", c.Group)
	}
	switch c.RangeBackend {
	case "stub", "groth16":
	default:
		return fmt.Errorf("range_backend must be stub or groth16, got %q", c.RangeBackend)
	}
	if c.RangeBackend == "groth16" && c.Group != "zq" {
		return fmt.Errorf("range_backend groth16 requires group zq")
	}
	switch c.StoreBackend {
	case "memory", "badger":
	default:
		return fmt.Errorf("store_backend must be memory or badger, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "badger" && c.StorePath == "" {
		return fmt.Errorf("store_path is required for the badger store")
	}
	if c.RingSize <= 0 || c.RingSize > 1<<16-1 {
		return fmt.Errorf("ring_size must be in [1, 65535]")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}
	if c.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive")
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return fmt.Errorf("audit_log_path is required when audit is enabled")
	}
	return nil
}
