// Package orchestrator drives the per-period download runs: it derives the
// work set from the manifest, dispatches bounded-concurrency fetches
// through the rate limiter, and reconciles results back into the manifest.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/fetch"
	"github.com/fdwk/sec-crawler/internal/manifest"
	"github.com/fdwk/sec-crawler/internal/metrics"
	"github.com/fdwk/sec-crawler/internal/ratelimit"
)

// ErrManifestMissing means index ingestion has not run for the period yet.
var ErrManifestMissing = errors.New("orchestrator: manifest missing, run ingest first")

// completeMarker flags a period+form directory as fully downloaded. Its
// presence short-circuits the whole period on re-runs.
const completeMarker = ".complete"

// Report counts the outcomes of one period run.
type Report struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

// Options tunes one run.
type Options struct {
	// Concurrency is the fixed worker pool size. Default 5.
	Concurrency int
	// RetryFailed keeps entries that exhausted their transient retry
	// budget eligible on subsequent runs: the period's completion marker
	// is only written once a run ends with zero failures. When false, the
	// marker is written even if failures remain.
	RetryFailed bool
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store      manifest.Store
	Downloader *fetch.Downloader
	Limiter    *ratelimit.Limiter
	BaseURL    string
	DataDir    string
	Logger     *zap.Logger
}

// Orchestrator runs one period at a time; callers iterate periods in
// chronological order so total concurrent connections stay bounded by the
// pool size.
type Orchestrator struct {
	cfg Config
}

// New validates the wiring and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("manifest store is required")
	}
	if cfg.Downloader == nil {
		return nil, fmt.Errorf("downloader is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg}, nil
}

// DocumentPath returns where a filing document lands on disk.
func (o *Orchestrator) DocumentPath(period edgar.Period, formCode string, e edgar.Entry) string {
	return filepath.Join(o.cfg.DataDir, period.DirName(), formCode, e.DocumentName())
}

func (o *Orchestrator) markerPath(period edgar.Period, formCode string) string {
	return filepath.Join(o.cfg.DataDir, period.DirName(), formCode, completeMarker)
}

// Run downloads every pending filing of the given form type for one period.
// Failures after retry exhaustion are recorded per entry and never abort
// sibling work; only manifest write failures abort the run. Run returns
// once all dispatched work has completed.
func (o *Orchestrator) Run(ctx context.Context, period edgar.Period, formType edgar.FormType, opts Options) (Report, error) {
	if !formType.Valid() {
		return Report{}, fmt.Errorf("%w: %d", edgar.ErrUnknownFormType, int(formType))
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	formCode := formType.Code()

	m, err := o.cfg.Store.Load(ctx, period)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return Report{}, fmt.Errorf("%w: period %s", ErrManifestMissing, period)
		}
		return Report{}, err
	}

	total, downloaded := m.CountByForm(formCode)

	// A prior fully-successful run marked the whole period complete;
	// entry-level drift detection is the validator's job.
	if _, err := os.Stat(o.markerPath(period, formCode)); err == nil {
		o.cfg.Logger.Info("period already complete, skipping",
			zap.String("period", period.String()),
			zap.String("form_type", formCode))
		return Report{Skipped: total}, nil
	}

	pending := m.Pending(formCode)
	runID := uuid.NewString()
	logger := o.cfg.Logger.With(
		zap.String("run_id", runID),
		zap.String("period", period.String()),
		zap.String("form_type", formCode),
	)
	logger.Info("starting period run",
		zap.Int("total", total),
		zap.Int("already_downloaded", downloaded),
		zap.Int("pending", len(pending)),
		zap.Int("concurrency", opts.Concurrency))

	var (
		mu     sync.Mutex
		report = Report{Skipped: downloaded}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, entry := range pending {
		// Stop dispatching new work once the run is cancelled or a
		// persistence failure has poisoned the group context.
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return o.fetchEntry(gctx, logger, period, formCode, entry, &mu, &report)
		})
	}

	// All dispatched work finishes (or drains via context) before Run returns.
	runErr := g.Wait()

	logger.Info("period run finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))

	if runErr != nil {
		return report, runErr
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	if report.Failed == 0 || !opts.RetryFailed {
		if err := o.writeMarker(period, formCode); err != nil {
			return report, err
		}
	}
	return report, nil
}

// fetchEntry downloads one filing. It only returns a non-nil error for
// manifest persistence failures; fetch failures are folded into the report.
func (o *Orchestrator) fetchEntry(
	ctx context.Context,
	logger *zap.Logger,
	period edgar.Period,
	formCode string,
	entry edgar.Entry,
	mu *sync.Mutex,
	report *Report,
) error {
	if err := o.cfg.Limiter.Wait(ctx); err != nil {
		// Cancelled while queued for a grant; nothing was attempted.
		return nil
	}

	metrics.WorkerStarted()
	defer metrics.WorkerDone()

	url := o.cfg.BaseURL + "/Archives/" + entry.Filename
	dest := o.DocumentPath(period, formCode, entry)
	out := o.cfg.Downloader.Fetch(ctx, url, dest)

	switch out.Status {
	case fetch.StatusSuccess, fetch.StatusSkipped:
		if err := o.cfg.Store.MarkDownloaded(ctx, period, entry.Filename, true); err != nil {
			// State integrity beats progress: poison the run.
			return fmt.Errorf("persist download state for %s: %w", entry.Filename, err)
		}
	case fetch.StatusFailed:
		logger.Warn("fetch failed",
			zap.String("filename", entry.Filename),
			zap.String("kind", out.Failure.String()),
			zap.Int("status_code", out.StatusCode),
			zap.Error(out.Err))
	}

	mu.Lock()
	switch out.Status {
	case fetch.StatusSuccess:
		report.Attempted++
		report.Succeeded++
		metrics.IncDocument(formCode, "success")
	case fetch.StatusSkipped:
		report.Skipped++
		metrics.IncDocument(formCode, "skipped")
	case fetch.StatusFailed:
		report.Attempted++
		report.Failed++
		metrics.IncDocument(formCode, out.Failure.String())
	}
	mu.Unlock()
	return nil
}

func (o *Orchestrator) writeMarker(period edgar.Period, formCode string) error {
	path := o.markerPath(period, formCode)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create form dir: %w", err)
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return fmt.Errorf("write completion marker: %w", err)
	}
	return nil
}
