package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/fetch"
	"github.com/fdwk/sec-crawler/internal/manifest"
	"github.com/fdwk/sec-crawler/internal/metrics"
)

func newIngestCmd(current **app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Download and parse master index files into per-quarter manifests",
		Long: `Downloads the master.idx file for every quarter in the configured date
range and derives a manifest from it. Quarters that already have a
persisted manifest are skipped entirely, including the index download.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), *current)
		},
	}
}

func runIngest(ctx context.Context, a *app) error {
	periods, err := enumerateConfigured(a)
	if err != nil {
		return err
	}

	a.logger.Info("ingesting index files", zap.Int("periods", len(periods)))

	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := ingestPeriod(ctx, a, period); err != nil {
			return err
		}
	}
	return nil
}

func ingestPeriod(ctx context.Context, a *app, period edgar.Period) error {
	if _, err := a.store.Load(ctx, period); err == nil {
		a.logger.Debug("manifest exists, skipping index", zap.String("period", period.String()))
		return nil
	} else if !errors.Is(err, manifest.ErrNotFound) {
		return err
	}

	url := fmt.Sprintf("%s/Archives/edgar/full-index/%d/QTR%d/master.idx",
		a.cfg.Edgar.BaseURL, period.Year, period.Quarter)
	dest := filepath.Join(a.cfg.Edgar.DataDir, period.DirName(), "source", "master.idx")

	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	out := a.downloader.Fetch(ctx, url, dest)
	if out.Status == fetch.StatusFailed {
		// A missing or unreachable index leaves the period manifest-less;
		// the run carries on to the remaining quarters.
		a.logger.Error("index download failed",
			zap.String("period", period.String()),
			zap.String("url", url),
			zap.Int("status_code", out.StatusCode),
			zap.Error(out.Err))
		return nil
	}

	raw, err := os.ReadFile(dest)
	if err != nil {
		return fmt.Errorf("read index for %s: %w", period, err)
	}
	m, report, err := a.store.UpsertFromIndex(ctx, period, raw)
	if err != nil {
		return err
	}
	if report != nil {
		metrics.AddSkippedLines(report.Skipped)
	}
	a.logger.Info("period ingested",
		zap.String("period", period.String()),
		zap.Int("entries", len(m.Entries)))
	return nil
}

// enumerateConfigured expands the configured date range into periods.
func enumerateConfigured(a *app) ([]edgar.Period, error) {
	start, end, err := a.cfg.DateRange()
	if err != nil {
		return nil, err
	}
	periods, err := edgar.EnumeratePeriods(start, end, time.Now())
	if err != nil {
		return nil, err
	}
	return periods, nil
}
