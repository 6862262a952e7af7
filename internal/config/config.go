// Package config provides configuration management for lobbywatch.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWebSocketURL         = "ws://localhost:8766"
	DefaultListenAddr           = "127.0.0.1:8767"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = time.Second
	DefaultStartTimeout         = 30 * time.Second
	DefaultStopTimeout          = 5 * time.Second
	DefaultDualTableOrder       = "aligned_first"
	DefaultDigestLimit          = 10
	DefaultLogLevel             = "info"
)

// Environment variable names.
const (
	EnvWebSocketURL   = "LOBBYWATCH_WS_URL"
	EnvListenAddr     = "LOBBYWATCH_LISTEN_ADDR"
	EnvTraceDB        = "LOBBYWATCH_TRACE_DB"
	EnvLogLevel       = "LOBBYWATCH_LOG_LEVEL"
	EnvDualTableOrder = "LOBBYWATCH_DUAL_TABLE_ORDER"
	EnvMaxReconnects  = "LOBBYWATCH_MAX_RECONNECTS"
)

// Config holds lobbywatch settings.
type Config struct {
	WebSocketURL         string        `yaml:"ws_url"`
	ListenAddr           string        `yaml:"listen_addr"`
	TraceDBPath          string        `yaml:"trace_db"`
	LogLevel             string        `yaml:"log_level"`
	DualTableOrder       string        `yaml:"dual_table_order"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	StartTimeout         time.Duration `yaml:"start_timeout"`
	StopTimeout          time.Duration `yaml:"stop_timeout"`
	DigestLimit          int           `yaml:"digest_limit"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Default returns a Config with every field at its default.
func Default() *Config {
	return &Config{
		WebSocketURL:         DefaultWebSocketURL,
		ListenAddr:           DefaultListenAddr,
		LogLevel:             DefaultLogLevel,
		DualTableOrder:       DefaultDualTableOrder,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		StartTimeout:         DefaultStartTimeout,
		StopTimeout:          DefaultStopTimeout,
		DigestLimit:          DefaultDigestLimit,
	}
}

// DataDir returns the data directory path.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".lobbywatch")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// TraceDBPath returns the default frame trace database path.
func TraceDBPath() string {
	return filepath.Join(DataDir(), "trace.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// Load reads the settings file and applies environment overrides.
// A missing or unparseable settings file yields defaults.
func Load() (*Config, error) {
	return LoadFile(SettingsPath())
}

// LoadFile reads settings from path and applies environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		fileCfg := Default()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Invalid settings file, using defaults")
		} else {
			cfg = fileCfg
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvWebSocketURL)); v != "" {
		cfg.WebSocketURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvListenAddr)); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTraceDB)); v != "" {
		cfg.TraceDBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDualTableOrder)); v != "" {
		cfg.DualTableOrder = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMaxReconnects)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxReconnectAttempts = n
		}
	}
}

// normalize replaces invalid values with defaults.
func (c *Config) normalize() {
	if c.WebSocketURL == "" {
		c.WebSocketURL = DefaultWebSocketURL
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.DigestLimit <= 0 {
		c.DigestLimit = DefaultDigestLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DualTableOrder == "" {
		c.DualTableOrder = DefaultDualTableOrder
	}
}

// Get returns the cached configuration, loading it on first use.
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		loaded, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			loaded = Default()
		}
		current = loaded
	}
	return current
}

// Reload re-reads the settings file and replaces the cached configuration.
func Reload() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}
