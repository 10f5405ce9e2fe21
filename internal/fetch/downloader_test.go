package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDownloader() *Downloader {
	return New(Config{
		UserAgent:      "someone@example.com",
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
	}, zap.NewNop())
}

func TestFetchSuccessWritesFile(t *testing.T) {
	t.Parallel()

	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("filing body")) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "10-K", "doc.txt")
	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)

	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, int64(len("filing body")), out.Bytes)
	require.Equal(t, "someone@example.com", gotUA.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "filing body", string(data))

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(dest))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFetchSkipsExistingFile(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte("body")) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o600))

	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)
	require.Equal(t, StatusSkipped, out.Status)
	require.Equal(t, int32(0), calls.Load(), "skip must not touch the network")
}

func TestFetchNotFoundNeverRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)

	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, FailureNotFound, out.Failure)
	require.Equal(t, http.StatusNotFound, out.StatusCode)
	require.Equal(t, int32(1), calls.Load())

	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestFetchTransientRetriesExactBudget(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)

	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, FailureTransient, out.Failure)
	// Initial attempt plus MaxRetries additional attempts.
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchTransientThenSuccess(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)

	require.Equal(t, StatusSuccess, out.Status)
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchUnexpectedStatusNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "doc.txt")
	out := newTestDownloader().Fetch(context.Background(), srv.URL, dest)

	require.Equal(t, StatusFailed, out.Status)
	require.Equal(t, FailureUnexpected, out.Failure)
	require.Equal(t, http.StatusTeapot, out.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestFetchCancelledMidWriteLeavesNoFinalFile(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024))) //nolint:errcheck
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		cancel()
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("tail")) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "doc.txt")
	out := newTestDownloader().Fetch(ctx, srv.URL, dest)

	require.Equal(t, StatusFailed, out.Status)
	_, err := os.Stat(dest)
	require.True(t, os.IsNotExist(err), "partial download must not land on the final path")
}
