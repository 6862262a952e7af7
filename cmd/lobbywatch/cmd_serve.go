package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/lobbywatch/internal/config"
	"github.com/thebtf/lobbywatch/internal/relay"
	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/internal/trace"
	"github.com/thebtf/lobbywatch/internal/transport"
	"github.com/thebtf/lobbywatch/internal/watcher"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	traceLogLimit   = 2048
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SSE relay for browser clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (default from settings)")
	return cmd
}

// newClient builds the backend client with the configured interceptors.
// The returned cleanup closes the frame recorder, if any.
func newClient(cfg *config.Config) (*transport.Client, func()) {
	var opts []transport.Option
	cleanup := func() {}

	if debug {
		opts = append(opts, transport.WithInterceptor(trace.NewLogInterceptor(traceLogLimit)))
	}
	if cfg.TraceDBPath != "" {
		rec, err := trace.OpenRecorder(cfg.TraceDBPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.TraceDBPath).Msg("Frame recorder unavailable")
		} else {
			log.Info().Str("path", cfg.TraceDBPath).Msg("Recording frames")
			opts = append(opts, transport.WithInterceptor(rec))
			cleanup = func() {
				if err := rec.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close frame recorder")
				}
			}
		}
	}

	return transport.NewFromConfig(cfg, opts...), cleanup
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := config.EnsureDataDir(); err != nil {
		log.Warn().Err(err).Msg("Failed to create data directory")
	}

	client, closeTrace := newClient(cfg)
	defer closeTrace()

	orch := session.NewFromConfig(client, cfg)
	defer orch.Close()

	svc := relay.NewService(Version, orch, client)
	client.SetOnStateChange(svc.ConnectionChanged)

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	if err := client.Connect(connectCtx); err != nil {
		// Investigations connect on demand.
		log.Warn().Err(err).Str("url", cfg.WebSocketURL).Msg("Backend not reachable yet")
	}
	cancel()
	svc.MarkReady()

	startSettingsWatcher(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.ListenAndServe(cfg.ListenAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if _, active := orch.ActiveSession(); active {
			if err := orch.StopSession(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("Failed to stop investigation on shutdown")
			}
		}
		if err := client.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backend connection")
		}
		return svc.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// startSettingsWatcher reloads the log level when the settings file changes.
// Connection settings take effect on the next start.
func startSettingsWatcher(ctx context.Context) {
	path := settingsPath()
	w, err := watcher.New(path, func() {
		cfg, err := reloadConfig()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to reload settings")
			return
		}
		setupLogging(cfg.LogLevel)
		log.Info().Str("logLevel", cfg.LogLevel).Msg("Settings reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	go func() {
		<-ctx.Done()
		_ = w.Stop()
	}()
}
