package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/manifest"
	"github.com/fdwk/sec-crawler/internal/validate"
)

func newValidateCmd(current **app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Reconcile manifest download flags against files on disk",
		Long: `Checks every manifest entry of the configured form type against the
filing's expected location and corrects flags that disagree with what is
actually on disk. Useful after an interrupted run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd.Context(), *current)
		},
	}
}

func runValidate(ctx context.Context, a *app) error {
	formType, err := edgar.ParseFormType(a.cfg.Edgar.FormType)
	if err != nil {
		return err
	}
	periods, err := enumerateConfigured(a)
	if err != nil {
		return err
	}

	v, err := validate.New(a.store, a.cfg.Edgar.DataDir, a.logger)
	if err != nil {
		return err
	}

	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := v.Reconcile(ctx, period, formType)
		if errors.Is(err, manifest.ErrNotFound) {
			a.logger.Debug("no manifest for period", zap.String("period", period.String()))
			continue
		}
		if err != nil {
			return err
		}
		a.logger.Info("validation report",
			zap.String("period", period.String()),
			zap.Int("total", result.TotalEntries),
			zap.Int("downloaded", result.DownloadedCount),
			zap.Int("drift_corrected", result.DriftCorrected))
	}
	return nil
}
