package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/observability"
	"github.com/jonwraymond/mcp-gateway/internal/registry"
	"github.com/jonwraymond/mcp-gateway/internal/server"
)

// shutdownGrace bounds how long a `serve` invocation waits for in-flight
// requests to drain once SIGINT/SIGTERM is received, per spec §5's
// shutdown-waits-for-a-yield-point note.
const shutdownGrace = 10 * time.Second

// serveOptions holds the serve command's CLI surface (spec §6: config path,
// host/port override, log level, and a disable-meta switch).
type serveOptions struct {
	configPath string
	host       string
	port       int
	logLevel   string
	noMetaMCP  bool
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to gateway config file")
	cmd.Flags().StringVar(&opts.host, "host", "", "Override the configured host")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Override the configured port")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().BoolVar(&opts.noMetaMCP, "no-meta-mcp", false, "Disable the meta facade at /mcp")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions) error {
	if opts.configPath != "" {
		if _, err := os.Stat(opts.configPath); err != nil {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(&cfg, opts)

	log := newLogger(cfg.LogLevel)
	log.Info("starting mcp-gateway", "host", cfg.Host, "port", cfg.Port,
		"backends", len(cfg.Backends), "enabled", len(cfg.EnabledBackends()), "meta_mcp", cfg.EnableMetaMCP)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := registry.New(cfg, log)
	metrics := observability.New()
	srv := server.New(reg, log, metrics, cfg.EnableMetaMCP)

	go reg.Run(ctx)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: srv.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		reg.Shutdown()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown did not complete cleanly", "error", err)
	}
	reg.Shutdown()
	log.Info("mcp-gateway stopped")
	return nil
}

func applyCLIOverrides(cfg *config.GatewayConfig, opts *serveOptions) {
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.noMetaMCP {
		cfg.EnableMetaMCP = false
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
