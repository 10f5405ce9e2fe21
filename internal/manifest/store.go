// Package manifest provides durable per-period records of filing entries
// and their download status, the source of truth for resumable runs.
package manifest

import (
	"context"
	"errors"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/index"
)

// ErrNotFound reports that no manifest has been persisted for a period.
var ErrNotFound = errors.New("manifest: not found")

// Manifest is the ordered set of known filing entries for one period.
type Manifest struct {
	Period  edgar.Period
	Entries []edgar.Entry
}

// Pending returns the entries of the given form type that have not been
// downloaded yet.
func (m *Manifest) Pending(formCode string) []edgar.Entry {
	var out []edgar.Entry
	for _, e := range m.Entries {
		if e.FormType == formCode && !e.Downloaded {
			out = append(out, e)
		}
	}
	return out
}

// CountByForm returns total and downloaded counts for a form type.
func (m *Manifest) CountByForm(formCode string) (total, downloaded int) {
	for _, e := range m.Entries {
		if e.FormType != formCode {
			continue
		}
		total++
		if e.Downloaded {
			downloaded++
		}
	}
	return total, downloaded
}

// Store persists manifests. MarkDownloaded must be safe for concurrent
// calls touching different entries of the same period; implementations
// serialize the read-modify-write per period.
type Store interface {
	// Load returns the persisted manifest for a period, or ErrNotFound.
	Load(ctx context.Context, period edgar.Period) (*Manifest, error)

	// Save atomically replaces the persisted manifest for its period.
	Save(ctx context.Context, m *Manifest) error

	// UpsertFromIndex derives a manifest from raw index bytes and persists
	// it. If a manifest is already persisted for the period it is returned
	// unchanged with a nil report and no parse or write occurs.
	UpsertFromIndex(ctx context.Context, period edgar.Period, raw []byte) (*Manifest, *index.Report, error)

	// MarkDownloaded updates one entry's downloaded flag by filename.
	MarkDownloaded(ctx context.Context, period edgar.Period, filename string, downloaded bool) error
}
