package validate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/manifest"
)

var testPeriod = edgar.Period{Year: 2023, Quarter: 2}

func seed(t *testing.T) (*manifest.MemoryStore, string) {
	t.Helper()
	store := manifest.NewMemoryStore()
	m := &manifest.Manifest{
		Period: testPeriod,
		Entries: []edgar.Entry{
			{CIK: "1", FormType: "10-K", Filename: "edgar/data/1/a.txt", DateFiled: time.Now(), Downloaded: true},
			{CIK: "2", FormType: "10-K", Filename: "edgar/data/2/b.txt", DateFiled: time.Now(), Downloaded: false},
			{CIK: "3", FormType: "10-Q", Filename: "edgar/data/3/c.txt", DateFiled: time.Now(), Downloaded: false},
		},
	}
	require.NoError(t, store.Save(context.Background(), m))
	return store, t.TempDir()
}

func writeDoc(t *testing.T, dataDir, name string) {
	t.Helper()
	dir := filepath.Join(dataDir, testPeriod.DirName(), "10-K")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("body"), 0o600))
}

func TestReconcileCorrectsDriftBothWays(t *testing.T) {
	t.Parallel()

	store, dataDir := seed(t)
	// Entry 1 is flagged downloaded but missing on disk; entry 2 is on
	// disk but flagged not downloaded.
	writeDoc(t, dataDir, "b.txt")

	v, err := New(store, dataDir, zap.NewNop())
	require.NoError(t, err)

	result, err := v.Reconcile(context.Background(), testPeriod, edgar.AnnualReport)
	require.NoError(t, err)
	require.Equal(t, Result{TotalEntries: 2, DownloadedCount: 1, DriftCorrected: 2}, result)

	m, err := store.Load(context.Background(), testPeriod)
	require.NoError(t, err)
	require.False(t, m.Entries[0].Downloaded)
	require.True(t, m.Entries[1].Downloaded)
	// Other form types are untouched.
	require.False(t, m.Entries[2].Downloaded)
}

func TestReconcileNoDriftNoSave(t *testing.T) {
	t.Parallel()

	store, dataDir := seed(t)
	writeDoc(t, dataDir, "a.txt")

	v, err := New(store, dataDir, zap.NewNop())
	require.NoError(t, err)

	result, err := v.Reconcile(context.Background(), testPeriod, edgar.AnnualReport)
	require.NoError(t, err)
	require.Equal(t, Result{TotalEntries: 2, DownloadedCount: 1, DriftCorrected: 0}, result)
}

func TestReconcileEmptyFileCountsAsMissing(t *testing.T) {
	t.Parallel()

	store, dataDir := seed(t)
	dir := filepath.Join(dataDir, testPeriod.DirName(), "10-K")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o600))

	v, err := New(store, dataDir, zap.NewNop())
	require.NoError(t, err)

	result, err := v.Reconcile(context.Background(), testPeriod, edgar.AnnualReport)
	require.NoError(t, err)
	require.Equal(t, 0, result.DownloadedCount)
	require.Equal(t, 1, result.DriftCorrected)
}

func TestReconcileMissingManifest(t *testing.T) {
	t.Parallel()

	v, err := New(manifest.NewMemoryStore(), t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = v.Reconcile(context.Background(), testPeriod, edgar.AnnualReport)
	require.ErrorIs(t, err, manifest.ErrNotFound)
}
