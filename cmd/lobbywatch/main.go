// Package main provides the lobbywatch command line entry point.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/lobbywatch/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	debug      bool
	configPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lobbywatch",
		Short: "Stream lobbying investigations from the agent backend",
		Long: `lobbywatch connects to the multi-agent investigation backend, normalizes
its message stream into communications and extracts ranked congress member
tables from agent output.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Settings file (default: ~/.lobbywatch/settings.yaml)")

	root.AddCommand(newServeCmd(), newWatchCmd(), newParseCmd(), newTraceCmd())
	return root
}

// loadConfig reads the settings file named by --config, or the default one,
// and configures logging from it.
func loadConfig() *config.Config {
	cfg := config.Get()
	if configPath != "" {
		fileCfg, err := config.LoadFile(configPath)
		if err != nil {
			log.Warn().Err(err).Str("path", configPath).Msg("Failed to load config, using defaults")
		} else {
			cfg = fileCfg
		}
	}
	// Callers adjust their copy with flag overrides.
	copied := *cfg
	setupLogging(copied.LogLevel)
	return &copied
}

// reloadConfig re-reads the settings file after it changed on disk.
func reloadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Reload()
}

// settingsPath returns the file the watcher should follow.
func settingsPath() string {
	if configPath != "" {
		return configPath
	}
	return config.SettingsPath()
}

// setupLogging writes human-readable logs to stderr at level, or debug when
// --debug is set.
func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if debug {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
}
