package manifest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/index"
)

// csvColumns is the stable manifest schema. New columns may be appended;
// readers locate columns by header name so older files stay readable.
var csvColumns = []string{"cik", "company_name", "form_type", "date_filed", "filename", "downloaded"}

// CSVStore keeps one CSV manifest per period under
// {root}/{year}_{quarter}/source/master.csv. Writes go to a temp file in
// the same directory followed by a rename, so readers never observe a
// partial manifest.
type CSVStore struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[edgar.Period]*sync.Mutex
}

// NewCSVStore creates a CSV-backed store rooted at dir.
func NewCSVStore(dir string, logger *zap.Logger) (*CSVStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("manifest root directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create manifest root: %w", err)
	}
	return &CSVStore{
		root:   dir,
		logger: logger,
		locks:  make(map[edgar.Period]*sync.Mutex),
	}, nil
}

// Path returns the manifest file location for a period.
func (s *CSVStore) Path(period edgar.Period) string {
	return filepath.Join(s.root, period.DirName(), "source", "master.csv")
}

func (s *CSVStore) periodLock(period edgar.Period) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[period]
	if !ok {
		l = &sync.Mutex{}
		s.locks[period] = l
	}
	return l
}

// Load reads the persisted manifest for a period.
func (s *CSVStore) Load(_ context.Context, period edgar.Period) (*Manifest, error) {
	return s.load(period)
}

func (s *CSVStore) load(period edgar.Period) (*Manifest, error) {
	f, err := os.Open(s.Path(period))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: period %s", ErrNotFound, period)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", period, err)
	}
	if len(records) == 0 {
		return &Manifest{Period: period}, nil
	}

	// Resolve columns by header name so files written by older versions,
	// or files carrying extra columns, still read cleanly.
	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range csvColumns[:5] {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("manifest %s missing column %q", period, name)
		}
	}

	m := &Manifest{Period: period, Entries: make([]edgar.Entry, 0, len(records)-1)}
	for _, rec := range records[1:] {
		field := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		dateFiled, err := time.Parse(time.DateOnly, field("date_filed"))
		if err != nil {
			return nil, fmt.Errorf("manifest %s: bad date_filed %q: %w", period, field("date_filed"), err)
		}
		downloaded, _ := strconv.ParseBool(field("downloaded"))
		m.Entries = append(m.Entries, edgar.Entry{
			CIK:         field("cik"),
			CompanyName: field("company_name"),
			FormType:    field("form_type"),
			DateFiled:   dateFiled,
			Filename:    field("filename"),
			Downloaded:  downloaded,
		})
	}
	return m, nil
}

// Save atomically writes the manifest for its period.
func (s *CSVStore) Save(_ context.Context, m *Manifest) error {
	return s.save(m)
}

func (s *CSVStore) save(m *Manifest) error {
	dest := s.Path(m.Period)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "master-*.csv.tmp")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	w := csv.NewWriter(tmp)
	if err := w.Write(csvColumns); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("write manifest header: %w", err)
	}
	for _, e := range m.Entries {
		rec := []string{
			e.CIK,
			e.CompanyName,
			e.FormType,
			e.DateFiled.Format(time.DateOnly),
			e.Filename,
			strconv.FormatBool(e.Downloaded),
		}
		if err := w.Write(rec); err != nil {
			tmp.Close() //nolint:errcheck
			return fmt.Errorf("write manifest row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("flush manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// UpsertFromIndex parses raw index bytes into a fresh manifest and persists
// it. An already-persisted manifest is returned as-is: ingestion never
// reprocesses a period once its manifest exists.
func (s *CSVStore) UpsertFromIndex(ctx context.Context, period edgar.Period, raw []byte) (*Manifest, *index.Report, error) {
	lock := s.periodLock(period)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.load(period)
	switch {
	case err == nil:
		s.logger.Debug("manifest already persisted, skipping re-derivation",
			zap.String("period", period.String()),
			zap.Int("entries", len(existing.Entries)))
		return existing, nil, nil
	case !errors.Is(err, ErrNotFound):
		return nil, nil, err
	}

	entries, report, err := index.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse index for %s: %w", period, err)
	}

	m := &Manifest{Period: period, Entries: entries}
	if err := s.save(m); err != nil {
		return nil, nil, err
	}
	s.logger.Info("manifest created",
		zap.String("period", period.String()),
		zap.Int("parsed", report.Parsed),
		zap.Int("skipped_lines", report.Skipped))
	return m, report, nil
}

// MarkDownloaded updates one entry's flag under the period lock so that
// concurrent updates for different entries never interleave the
// read-modify-write of the file.
func (s *CSVStore) MarkDownloaded(_ context.Context, period edgar.Period, filename string, downloaded bool) error {
	lock := s.periodLock(period)
	lock.Lock()
	defer lock.Unlock()

	m, err := s.load(period)
	if err != nil {
		return err
	}
	for i := range m.Entries {
		if m.Entries[i].Filename == filename {
			if m.Entries[i].Downloaded == downloaded {
				return nil
			}
			m.Entries[i].Downloaded = downloaded
			return s.save(m)
		}
	}
	return fmt.Errorf("manifest %s has no entry for %q", period, filename)
}
