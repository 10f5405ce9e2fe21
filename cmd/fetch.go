package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/orchestrator"
)

func newFetchCmd(current **app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download filing documents for the configured form type",
		Long: `Walks the configured date range quarter by quarter, downloading every
manifest entry of the selected form type that has not been fetched yet.
Quarters are processed sequentially; within a quarter a fixed-size worker
pool issues downloads gated by the shared rate limiter.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd.Context(), *current)
		},
	}
}

func runFetch(ctx context.Context, a *app) error {
	formType, err := edgar.ParseFormType(a.cfg.Edgar.FormType)
	if err != nil {
		return err
	}
	periods, err := enumerateConfigured(a)
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Store:      a.store,
		Downloader: a.downloader,
		Limiter:    a.limiter,
		BaseURL:    a.cfg.Edgar.BaseURL,
		DataDir:    a.cfg.Edgar.DataDir,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		Concurrency: a.cfg.Fetch.Concurrency,
		RetryFailed: a.cfg.Fetch.RetryFailed,
	}

	for _, period := range periods {
		report, err := orch.Run(ctx, period, formType, opts)
		switch {
		case errors.Is(err, context.Canceled):
			return err
		case errors.Is(err, orchestrator.ErrManifestMissing):
			return err
		case err != nil:
			// Persistence failures halt the run; progress without durable
			// state is worthless.
			return err
		}
		a.logger.Info("period report",
			zap.String("period", period.String()),
			zap.String("form_type", formType.Code()),
			zap.Int("attempted", report.Attempted),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped))
	}
	return nil
}
