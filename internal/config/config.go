// Package config holds system-wide settings: built-in defaults, an optional
// JSON file, and TEAMSYNC_* environment overrides, applied in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the full server configuration.
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	History   *HistoryConfig   `json:"history"`
}

// HTTPConfig configures the listener shared by the WebSocket endpoint and
// the REST surface.
type HTTPConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// WebSocketConfig configures connection liveness and delivery behavior.
type WebSocketConfig struct {
	// ProbeInterval is how often live connections are pinged.
	ProbeInterval time.Duration `json:"probe_interval"`
	// SweepInterval is how often idle connections are scanned for eviction.
	SweepInterval time.Duration `json:"sweep_interval"`
	// IdleTimeout is the silence window after which a connection is evicted.
	IdleTimeout time.Duration `json:"idle_timeout"`
	// ReadWait is the read deadline extended on each pong; it must exceed
	// ProbeInterval or healthy connections get cut mid-probe-cycle.
	ReadWait time.Duration `json:"read_wait"`
}

// HistoryConfig configures the optional connection audit log.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DefaultConfig returns the reference settings: probe every 30s, sweep every
// 60s, evict after 5 minutes.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			ProbeInterval: 30 * time.Second,
			SweepInterval: 60 * time.Second,
			IdleTimeout:   5 * time.Minute,
			ReadWait:      60 * time.Second,
		},
		History: &HistoryConfig{
			Enabled: false,
			Path:    "./teamsync-events.db",
		},
	}
}

// Load builds the configuration from defaults, an optional JSON file, and
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if host := os.Getenv("TEAMSYNC_HTTP_HOST"); host != "" {
		c.HTTP.Host = host
	}
	if port := os.Getenv("TEAMSYNC_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.HTTP.Port = p
		}
	}
	if v := os.Getenv("TEAMSYNC_WS_PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.ProbeInterval = d
		}
	}
	if v := os.Getenv("TEAMSYNC_WS_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.SweepInterval = d
		}
	}
	if v := os.Getenv("TEAMSYNC_WS_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.IdleTimeout = d
		}
	}
	if v := os.Getenv("TEAMSYNC_WS_READ_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.WebSocket.ReadWait = d
		}
	}
	if v := os.Getenv("TEAMSYNC_HISTORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.History.Enabled = b
		}
	}
	if v := os.Getenv("TEAMSYNC_HISTORY_PATH"); v != "" {
		c.History.Path = v
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.ProbeInterval <= 0 {
		return fmt.Errorf("websocket probe interval must be positive")
	}
	if c.WebSocket.SweepInterval <= 0 {
		return fmt.Errorf("websocket sweep interval must be positive")
	}
	if c.WebSocket.IdleTimeout <= 0 {
		return fmt.Errorf("websocket idle timeout must be positive")
	}
	if c.WebSocket.ReadWait <= c.WebSocket.ProbeInterval {
		return fmt.Errorf("websocket read wait must exceed the probe interval")
	}

	if c.History == nil {
		return fmt.Errorf("history configuration is required")
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("history path cannot be empty when history is enabled")
	}

	return nil
}
