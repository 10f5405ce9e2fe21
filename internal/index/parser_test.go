package index

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const preamble = `Description:           Master Index of EDGAR Dissemination Feed
Last Data Received:    June 30, 2023
Anonymous FTP:         ftp://ftp.sec.gov/edgar/

CIK|Company Name|Form Type|Date Filed|Filename
--------------------------------------------------------------------------------
`

func TestParseValidIndex(t *testing.T) {
	t.Parallel()

	raw := preamble +
		"320193|Apple Inc.|10-K|2023-11-03|edgar/data/320193/0000320193-23-000106.txt\n" +
		"789019|MICROSOFT CORP|10-Q|2023-04-25|edgar/data/789019/0000950170-23-014423.txt\n"

	entries, report, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, 2, report.Parsed)
	require.Equal(t, 0, report.Skipped)
	require.Len(t, entries, 2)

	require.Equal(t, "320193", entries[0].CIK)
	require.Equal(t, "Apple Inc.", entries[0].CompanyName)
	require.Equal(t, "10-K", entries[0].FormType)
	require.Equal(t, time.Date(2023, time.November, 3, 0, 0, 0, 0, time.UTC), entries[0].DateFiled)
	require.Equal(t, "edgar/data/320193/0000320193-23-000106.txt", entries[0].Filename)
	require.False(t, entries[0].Downloaded)
}

func TestParseSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	raw := preamble + strings.Join([]string{
		"320193|Apple Inc.|10-K|2023-11-03|edgar/data/320193/a.txt",
		"789019|MICROSOFT CORP|10-Q|2023-04-25|edgar/data/789019/b.txt",
		"this line is garbage",
		"1018724|AMAZON COM INC|8-K|2023-02-02|edgar/data/1018724/c.txt",
	}, "\n")

	entries, report, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 3, report.Parsed)
	require.Equal(t, 1, report.Skipped)
}

func TestParsePreambleNotCountedAsSkipped(t *testing.T) {
	t.Parallel()

	raw := preamble + "320193|Apple Inc.|10-K|2023-11-03|edgar/data/320193/a.txt\n"

	_, report, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, 0, report.Skipped)
}

func TestParseEmptyPayload(t *testing.T) {
	t.Parallel()

	_, _, err := Parse([]byte("not an index file at all\n"))
	require.ErrorIs(t, err, ErrNoRecords)

	_, _, err = Parse(nil)
	require.ErrorIs(t, err, ErrNoRecords)
}
