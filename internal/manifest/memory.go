package manifest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/index"
)

// MemoryStore is an in-memory Store, used in tests.
type MemoryStore struct {
	mu        sync.Mutex
	manifests map[edgar.Period][]edgar.Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{manifests: make(map[edgar.Period][]edgar.Entry)}
}

// Load returns a copy of the stored manifest, or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, period edgar.Period) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.manifests[period]
	if !ok {
		return nil, fmt.Errorf("%w: period %s", ErrNotFound, period)
	}
	return &Manifest{Period: period, Entries: append([]edgar.Entry(nil), entries...)}, nil
}

// Save replaces the stored manifest for a period.
func (s *MemoryStore) Save(_ context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.Period] = append([]edgar.Entry(nil), m.Entries...)
	return nil
}

// UpsertFromIndex parses and stores a manifest unless one already exists.
func (s *MemoryStore) UpsertFromIndex(_ context.Context, period edgar.Period, raw []byte) (*Manifest, *index.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entries, ok := s.manifests[period]; ok {
		return &Manifest{Period: period, Entries: append([]edgar.Entry(nil), entries...)}, nil, nil
	}
	entries, report, err := index.Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	s.manifests[period] = append([]edgar.Entry(nil), entries...)
	return &Manifest{Period: period, Entries: entries}, report, nil
}

// MarkDownloaded flips one entry's flag.
func (s *MemoryStore) MarkDownloaded(_ context.Context, period edgar.Period, filename string, downloaded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.manifests[period]
	if !ok {
		return fmt.Errorf("%w: period %s", ErrNotFound, period)
	}
	for i := range entries {
		if entries[i].Filename == filename {
			entries[i].Downloaded = downloaded
			return nil
		}
	}
	return fmt.Errorf("no entry for %q in period %s", filename, period)
}
