// Package cmd defines and implements the CLI commands for the sec-crawler
// executable.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/config"
	"github.com/fdwk/sec-crawler/internal/fetch"
	"github.com/fdwk/sec-crawler/internal/logging"
	"github.com/fdwk/sec-crawler/internal/manifest"
	"github.com/fdwk/sec-crawler/internal/metrics"
	"github.com/fdwk/sec-crawler/internal/ratelimit"
)

var cfgFile string

// app bundles the services the subcommands share. It is built once in the
// root command's PersistentPreRunE, after configuration has been validated.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	store      manifest.Store
	limiter    *ratelimit.Limiter
	downloader *fetch.Downloader
}

func (a *app) close() {
	if closer, ok := a.store.(interface{ Close() }); ok {
		closer.Close()
	}
	_ = a.logger.Sync() //nolint:errcheck // best-effort flush
}

// newApp is a factory variable so tests can substitute a mock.
var newApp = buildApp

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	var store manifest.Store
	switch cfg.Manifest.Backend {
	case "postgres":
		store, err = manifest.NewPostgresStore(ctx, cfg.Manifest.DSN, logger)
	default:
		store, err = manifest.NewCSVStore(cfg.Edgar.DataDir, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("build manifest store: %w", err)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		limiter: ratelimit.New(cfg.RateInterval()),
		downloader: fetch.New(fetch.Config{
			UserAgent:      cfg.Edgar.UserAgent,
			Timeout:        cfg.Timeout(),
			MaxRetries:     cfg.Fetch.MaxRetries,
			BackoffInitial: cfg.BackoffInitial(),
			BackoffMax:     cfg.BackoffMax(),
		}, logger),
	}, nil
}

func newRootCmd() *cobra.Command {
	var current *app

	cmd := &cobra.Command{
		Use:   "sec-crawler",
		Short: "Bulk downloader for SEC EDGAR filing indexes and documents.",
		Long: `sec-crawler retrieves quarterly master index files and filing documents
from the SEC EDGAR archive over a configured date range. Downloads are
rate-limited, resumable and idempotent: per-quarter manifests record what
has already been fetched, so interrupted runs pick up where they left off.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			current = a
			if a.cfg.Metrics.Enabled {
				startMetricsServer(a)
			}
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if current != nil {
				current.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	cmd.AddCommand(newIngestCmd(&current))
	cmd.AddCommand(newFetchCmd(&current))
	cmd.AddCommand(newValidateCmd(&current))
	return cmd
}

func startMetricsServer(a *app) {
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics endpoint listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

// Execute runs the root command with signal-aware cancellation: an
// interrupt stops dispatching new downloads and lets in-flight work drain.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
