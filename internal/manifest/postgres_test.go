package manifest

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
)

func TestPostgresStoreLoad(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, zap.NewNop())
	require.NoError(t, err)

	filed := time.Date(2023, time.November, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT cik, company_name, form_type, date_filed, filename, downloaded").
		WithArgs(2023, 2).
		WillReturnRows(pgxmock.NewRows([]string{"cik", "company_name", "form_type", "date_filed", "filename", "downloaded"}).
			AddRow("320193", "Apple Inc.", "10-K", filed, "edgar/data/320193/a.txt", true).
			AddRow("789019", "MICROSOFT CORP", "10-Q", filed, "edgar/data/789019/b.txt", false))

	m, err := store.Load(context.Background(), testPeriod)
	require.NoError(t, err)
	require.Len(t, m.Entries, 2)
	require.Equal(t, "Apple Inc.", m.Entries[0].CompanyName)
	require.True(t, m.Entries[0].Downloaded)
	require.False(t, m.Entries[1].Downloaded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoadEmptyIsNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectQuery("SELECT cik, company_name, form_type, date_filed, filename, downloaded").
		WithArgs(2023, 2).
		WillReturnRows(pgxmock.NewRows([]string{"cik", "company_name", "form_type", "date_filed", "filename", "downloaded"}))

	_, err = store.Load(context.Background(), testPeriod)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreSave(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, zap.NewNop())
	require.NoError(t, err)

	filed := time.Date(2023, time.November, 3, 0, 0, 0, 0, time.UTC)
	m := &Manifest{
		Period: testPeriod,
		Entries: []edgar.Entry{{
			CIK:         "320193",
			CompanyName: "Apple Inc.",
			FormType:    "10-K",
			DateFiled:   filed,
			Filename:    "edgar/data/320193/a.txt",
		}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM edgar_manifest").
		WithArgs(2023, 2).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO edgar_manifest").
		WithArgs(2023, 2, 0, "320193", "Apple Inc.", "10-K", filed, "edgar/data/320193/a.txt", false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectRollback() // deferred rollback is a no-op after commit

	require.NoError(t, store.Save(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreMarkDownloaded(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectExec("UPDATE edgar_manifest SET downloaded").
		WithArgs(true, 2023, 2, "edgar/data/320193/a.txt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = store.MarkDownloaded(context.Background(), testPeriod, "edgar/data/320193/a.txt", true)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE edgar_manifest SET downloaded").
		WithArgs(true, 2023, 2, "edgar/data/missing.txt").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = store.MarkDownloaded(context.Background(), testPeriod, "edgar/data/missing.txt", true)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
