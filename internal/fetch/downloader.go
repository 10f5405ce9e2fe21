// Package fetch performs single-document HTTP downloads with retry,
// error classification, and atomic persistence.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/metrics"
)

// Status is the top-level result of a fetch.
type Status int

const (
	StatusSuccess Status = iota + 1
	StatusSkipped
	StatusFailed
)

// FailureKind classifies why a fetch failed.
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureNotFound: the archive answered 404. Retrying cannot fix it.
	FailureNotFound
	// FailureTransient: timeout, connection error, 429 or 5xx. The retry
	// budget was exhausted.
	FailureTransient
	// FailureUnexpected: any other status code. Not retried.
	FailureUnexpected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNotFound:
		return "not_found"
	case FailureTransient:
		return "transient"
	case FailureUnexpected:
		return "unexpected"
	default:
		return "none"
	}
}

// Outcome reports the result of one Fetch call.
type Outcome struct {
	Status     Status
	Failure    FailureKind
	StatusCode int
	Bytes      int64
	Err        error
}

// Config controls downloader behavior. UserAgent is required by the remote
// service and must be validated by the caller before first use.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Downloader fetches one document at a time over a shared HTTP client.
type Downloader struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New builds a Downloader.
func New(cfg Config, logger *zap.Logger) *Downloader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 250 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// requestError carries the failure classification through the retry loop.
type requestError struct {
	kind       FailureKind
	statusCode int
	err        error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.kind, e.err)
	}
	return fmt.Sprintf("%s: status %d", e.kind, e.statusCode)
}

func (e *requestError) Unwrap() error { return e.err }

// Fetch retrieves url into destPath. If destPath already holds a non-empty
// file the fetch is skipped with no network call. The body lands in a temp
// file renamed over destPath only after a complete write, so a crash never
// leaves a partial file in the final location. Transient failures are
// retried up to the configured budget with exponential backoff.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string) Outcome {
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return Outcome{Status: StatusSkipped}
	}

	operation := func() (int64, error) {
		n, err := d.fetchOnce(ctx, url, destPath)
		if err == nil {
			return n, nil
		}
		var reqErr *requestError
		if errors.As(err, &reqErr) && reqErr.kind != FailureTransient {
			return 0, backoff.Permanent(err)
		}
		d.logger.Debug("retrying fetch", zap.String("url", url), zap.Error(err))
		return 0, err
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.cfg.BackoffInitial
	expo.MaxInterval = d.cfg.BackoffMax

	n, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(d.cfg.MaxRetries+1)),
	)
	if err == nil {
		metrics.AddBytes(n)
		return Outcome{Status: StatusSuccess, StatusCode: http.StatusOK, Bytes: n}
	}

	out := Outcome{Status: StatusFailed, Failure: FailureTransient, Err: err}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		out.Failure = reqErr.kind
		out.StatusCode = reqErr.statusCode
	}
	return out
}

func (d *Downloader) fetchOnce(ctx context.Context, url, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &requestError{kind: FailureUnexpected, err: err}
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		// Timeouts, resets, DNS failures: transient unless the context is gone.
		if ctx.Err() != nil {
			return 0, &requestError{kind: FailureUnexpected, err: ctx.Err()}
		}
		return 0, &requestError{kind: FailureTransient, err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort drain

	switch {
	case resp.StatusCode == http.StatusOK:
		n, err := writeAtomic(destPath, resp.Body)
		if err != nil {
			return 0, &requestError{kind: FailureUnexpected, err: err}
		}
		return n, nil
	case resp.StatusCode == http.StatusNotFound:
		return 0, &requestError{kind: FailureNotFound, statusCode: resp.StatusCode}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, &requestError{kind: FailureTransient, statusCode: resp.StatusCode}
	default:
		return 0, &requestError{kind: FailureUnexpected, statusCode: resp.StatusCode}
	}
}

// writeAtomic streams body into a temp file next to dest and renames it into
// place once fully written.
func writeAtomic(dest string, body io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("create destination dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	n, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return 0, fmt.Errorf("write body: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return 0, fmt.Errorf("sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, fmt.Errorf("finalize file: %w", err)
	}
	return n, nil
}
