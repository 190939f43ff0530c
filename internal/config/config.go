package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vortex/internal/ratelimit"
)

// Config is intentionally small and JSON-friendly; every field has a flag
// counterpart in cmd/vortex.
type Config struct {
	// Root is the directory served by the gateway. Required.
	Root string `json:"root"`

	// Addr is the listen address, e.g. "0.0.0.0:8000".
	Addr string `json:"addr"`

	// EnableAuth requires the persisted token on every request.
	EnableAuth bool `json:"enableAuth,omitempty"`

	// EnableTLS serves HTTPS with the persisted self-signed key pair.
	EnableTLS bool `json:"enableTLS,omitempty"`

	// RateLimit is the per-address request budget per minute. Default 200.
	RateLimit int `json:"rateLimit,omitempty"`

	// MaxConns bounds concurrent connections at the accept layer. Default 100.
	MaxConns int `json:"maxConns,omitempty"`

	// StateDir stores the token, TLS material, PID file and thumb cache.
	// Default: ~/.vortex
	StateDir string `json:"stateDir,omitempty"`
}

const DefaultMaxConns = 100

// Load reads a JSON config file.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Normalize fills defaults and makes Root absolute. It does not create
// directories.
func (c *Config) Normalize() error {
	if c.Root == "" {
		return fmt.Errorf("config: root is required")
	}
	abs, err := filepath.Abs(c.Root)
	if err != nil {
		return fmt.Errorf("abs root: %w", err)
	}
	c.Root = abs
	if c.Addr == "" {
		c.Addr = "0.0.0.0:8000"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = ratelimit.DefaultLimit
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir()
	}
	return nil
}

// DefaultStateDir is the per-user directory for persisted gateway state.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vortex"
	}
	return filepath.Join(home, ".vortex")
}
