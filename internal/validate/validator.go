// Package validate reconciles manifest download flags against what is
// actually on disk, catching drift left by interrupted runs.
package validate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/manifest"
)

// Result summarizes one reconciliation pass.
type Result struct {
	TotalEntries    int
	DownloadedCount int
	DriftCorrected  int
}

// Validator walks a period's manifest and fixes downloaded flags that
// disagree with filesystem truth. Single pass, no network.
type Validator struct {
	store   manifest.Store
	dataDir string
	logger  *zap.Logger
}

// New builds a Validator over the given store and data directory.
func New(store manifest.Store, dataDir string, logger *zap.Logger) (*Validator, error) {
	if store == nil {
		return nil, fmt.Errorf("manifest store is required")
	}
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{store: store, dataDir: dataDir, logger: logger}, nil
}

// Reconcile checks each entry of the given form type against its expected
// path, corrects flags that disagree with the file's presence, and persists
// the manifest once if anything changed.
func (v *Validator) Reconcile(ctx context.Context, period edgar.Period, formType edgar.FormType) (Result, error) {
	if !formType.Valid() {
		return Result{}, fmt.Errorf("%w: %d", edgar.ErrUnknownFormType, int(formType))
	}
	formCode := formType.Code()

	m, err := v.store.Load(ctx, period)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i := range m.Entries {
		e := &m.Entries[i]
		if e.FormType != formCode {
			continue
		}
		result.TotalEntries++

		path := filepath.Join(v.dataDir, period.DirName(), formCode, e.DocumentName())
		info, statErr := os.Stat(path)
		present := statErr == nil && info.Size() > 0

		if present != e.Downloaded {
			v.logger.Debug("correcting drift",
				zap.String("period", period.String()),
				zap.String("filename", e.Filename),
				zap.Bool("on_disk", present),
				zap.Bool("flag", e.Downloaded))
			e.Downloaded = present
			result.DriftCorrected++
		}
		if e.Downloaded {
			result.DownloadedCount++
		}
	}

	if result.DriftCorrected > 0 {
		if err := v.store.Save(ctx, m); err != nil {
			return result, fmt.Errorf("persist reconciled manifest: %w", err)
		}
	}
	v.logger.Info("reconciled period",
		zap.String("period", period.String()),
		zap.String("form_type", formCode),
		zap.Int("total", result.TotalEntries),
		zap.Int("downloaded", result.DownloadedCount),
		zap.Int("drift_corrected", result.DriftCorrected))
	return result, nil
}
