// Package index parses EDGAR master.idx files into manifest entries.
package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fdwk/sec-crawler/internal/edgar"
)

// ErrNoRecords reports an index payload with no parseable records at all,
// which usually means a truncated or non-index response.
var ErrNoRecords = errors.New("index: no records found")

// Record lines look like:
//
//	320193|Apple Inc.|10-K|2023-11-03|edgar/data/320193/0000320193-23-000106.txt
var recordPattern = regexp.MustCompile(`^(\d+)\|([^|]+)\|([^|]+)\|(\d{4}-\d{2}-\d{2})\|([^|\n]+)`)

// Report summarizes one parse pass.
type Report struct {
	Parsed  int
	Skipped int
}

// Parse converts the raw bytes of a master.idx file into manifest entries.
// The file opens with a free-text preamble which is ignored; once the first
// record has matched, any later non-empty line that fails to match is
// counted as skipped. Malformed lines never abort the parse.
func Parse(raw []byte) ([]edgar.Entry, *Report, error) {
	var (
		entries []edgar.Entry
		report  Report
		started bool
	)

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		m := recordPattern.FindStringSubmatch(line)
		if m == nil {
			if started && strings.TrimSpace(line) != "" {
				report.Skipped++
			}
			continue
		}
		started = true

		dateFiled, err := time.Parse(time.DateOnly, m[4])
		if err != nil {
			report.Skipped++
			continue
		}
		entries = append(entries, edgar.Entry{
			CIK:         m[1],
			CompanyName: strings.TrimSpace(m[2]),
			FormType:    strings.TrimSpace(m[3]),
			DateFiled:   dateFiled,
			Filename:    strings.TrimSpace(m[5]),
		})
		report.Parsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan index: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil, ErrNoRecords
	}
	return entries, &report, nil
}
