// Package edgar defines the core value types for the SEC EDGAR archive:
// filing periods, form types, and manifest entries.
package edgar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange reports a date range the archive cannot serve.
var ErrInvalidRange = errors.New("edgar: invalid date range")

// earliestSupported is the first date covered by EDGAR's full-text index.
var earliestSupported = time.Date(1993, time.January, 1, 0, 0, 0, 0, time.UTC)

// Period identifies one calendar quarter of the archive.
type Period struct {
	Year    int
	Quarter int
}

// String renders the period as "2023-Q2".
func (p Period) String() string {
	return fmt.Sprintf("%d-Q%d", p.Year, p.Quarter)
}

// DirName returns the on-disk directory name for the period.
func (p Period) DirName() string {
	return fmt.Sprintf("%d_%d", p.Year, p.Quarter)
}

// Before reports whether p precedes other chronologically.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Quarter < other.Quarter
}

func quarterOf(t time.Time) int {
	return (int(t.Month())-1)/3 + 1
}

// EnumeratePeriods returns every calendar quarter fully or partially
// overlapped by [start, end], in chronological order. now anchors the
// future-date check.
func EnumeratePeriods(start, end, now time.Time) ([]Period, error) {
	switch {
	case start.Before(earliestSupported):
		return nil, fmt.Errorf("%w: start %s precedes earliest supported date %s",
			ErrInvalidRange, start.Format(time.DateOnly), earliestSupported.Format(time.DateOnly))
	case end.Before(start):
		return nil, fmt.Errorf("%w: end %s precedes start %s",
			ErrInvalidRange, end.Format(time.DateOnly), start.Format(time.DateOnly))
	case start.After(now) || end.After(now):
		return nil, fmt.Errorf("%w: range [%s, %s] extends into the future",
			ErrInvalidRange, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	first := Period{Year: start.Year(), Quarter: quarterOf(start)}
	last := Period{Year: end.Year(), Quarter: quarterOf(end)}

	var periods []Period
	for p := first; !last.Before(p); {
		periods = append(periods, p)
		p.Quarter++
		if p.Quarter > 4 {
			p.Quarter = 1
			p.Year++
		}
	}
	return periods, nil
}
