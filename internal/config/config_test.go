// Package config provides configuration management for lobbywatch.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir string
}

func (s *ConfigSuite) SetupTest() {
	s.tempDir = s.T().TempDir()
	s.T().Setenv("HOME", s.tempDir)
	for _, env := range []string{EnvWebSocketURL, EnvListenAddr, EnvTraceDB, EnvLogLevel, EnvDualTableOrder, EnvMaxReconnects} {
		s.T().Setenv(env, "")
	}
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWebSocketURL, cfg.WebSocketURL)
	s.Equal(5, cfg.MaxReconnectAttempts)
	s.Equal(30*time.Second, cfg.StartTimeout)
	s.Equal(5*time.Second, cfg.StopTimeout)
	s.Equal(10, cfg.DigestLimit)
	s.Equal("aligned_first", cfg.DualTableOrder)
}

// TestPaths tests data directory paths.
func (s *ConfigSuite) TestPaths() {
	s.Contains(DataDir(), ".lobbywatch")
	s.Contains(SettingsPath(), "settings.yaml")
	s.Contains(TraceDBPath(), "trace.db")
}

// TestEnsureDataDir tests data directory creation.
func (s *ConfigSuite) TestEnsureDataDir() {
	s.NoError(EnsureDataDir())
	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
}

// TestLoad_TableDriven tests configuration loading with various settings files.
func (s *ConfigSuite) TestLoad_TableDriven() {
	tests := []struct {
		name          string
		settings      string
		expectedURL   string
		expectedRetry int
		expectedStart time.Duration
	}{
		{
			name:          "no settings file",
			expectedURL:   DefaultWebSocketURL,
			expectedRetry: DefaultMaxReconnectAttempts,
			expectedStart: DefaultStartTimeout,
		},
		{
			name:          "custom url",
			settings:      "ws_url: ws://backend:9000\n",
			expectedURL:   "ws://backend:9000",
			expectedRetry: DefaultMaxReconnectAttempts,
			expectedStart: DefaultStartTimeout,
		},
		{
			name:          "custom timeouts",
			settings:      "start_timeout: 45s\nmax_reconnect_attempts: 2\n",
			expectedURL:   DefaultWebSocketURL,
			expectedRetry: 2,
			expectedStart: 45 * time.Second,
		},
		{
			name:          "invalid yaml returns defaults",
			settings:      ":\tinvalid:\tyaml:\t[unclosed",
			expectedURL:   DefaultWebSocketURL,
			expectedRetry: DefaultMaxReconnectAttempts,
			expectedStart: DefaultStartTimeout,
		},
		{
			name:          "negative values normalized",
			settings:      "start_timeout: -1s\ndigest_limit: 0\n",
			expectedURL:   DefaultWebSocketURL,
			expectedRetry: DefaultMaxReconnectAttempts,
			expectedStart: DefaultStartTimeout,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			path := filepath.Join(s.T().TempDir(), "settings.yaml")
			if tt.settings != "" {
				s.Require().NoError(os.WriteFile(path, []byte(tt.settings), 0600))
			}

			cfg, err := LoadFile(path)
			s.NoError(err)
			s.Require().NotNil(cfg)
			s.Equal(tt.expectedURL, cfg.WebSocketURL)
			s.Equal(tt.expectedRetry, cfg.MaxReconnectAttempts)
			s.Equal(tt.expectedStart, cfg.StartTimeout)
			s.Equal(DefaultDigestLimit, cfg.DigestLimit)
		})
	}
}

// TestLoad_EnvOverride tests environment overrides on top of the file.
func (s *ConfigSuite) TestLoad_EnvOverride() {
	s.Require().NoError(EnsureDataDir())
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte("ws_url: ws://file:1\n"), 0600))

	s.T().Setenv(EnvWebSocketURL, "ws://env:2")
	s.T().Setenv(EnvDualTableOrder, "opposed_first")
	s.T().Setenv(EnvMaxReconnects, "not-a-number")

	cfg, err := Load()
	s.NoError(err)
	s.Equal("ws://env:2", cfg.WebSocketURL)
	s.Equal("opposed_first", cfg.DualTableOrder)
	s.Equal(DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
}

// TestReload tests that Reload replaces the cached config.
func (s *ConfigSuite) TestReload() {
	s.Require().NoError(EnsureDataDir())
	s.Require().NoError(os.WriteFile(SettingsPath(), []byte("listen_addr: 127.0.0.1:9999\n"), 0600))

	cfg, err := Reload()
	s.NoError(err)
	s.Equal("127.0.0.1:9999", cfg.ListenAddr)
	s.Same(cfg, Get())
}

func TestGet_ReturnsConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Get()
	require.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.WebSocketURL)
	assert.Greater(t, cfg.MaxReconnectAttempts, 0)
}
