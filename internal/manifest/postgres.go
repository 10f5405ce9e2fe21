package manifest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fdwk/sec-crawler/internal/edgar"
	"github.com/fdwk/sec-crawler/internal/index"
)

// pgxPool is the slice of pgxpool.Pool the store needs; pgxmock satisfies
// it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore keeps manifests in a single table:
//
//	CREATE TABLE edgar_manifest (
//	    year         INT  NOT NULL,
//	    quarter      INT  NOT NULL,
//	    position     INT  NOT NULL,
//	    cik          TEXT NOT NULL,
//	    company_name TEXT NOT NULL,
//	    form_type    TEXT NOT NULL,
//	    date_filed   DATE NOT NULL,
//	    filename     TEXT NOT NULL,
//	    downloaded   BOOL NOT NULL DEFAULT FALSE,
//	    PRIMARY KEY (year, quarter, cik, filename)
//	);
type PostgresStore struct {
	pool   pgxPool
	logger *zap.Logger
}

// NewPostgresStore connects a pool from the DSN.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("manifest.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewPostgresStoreWithPool(pool, logger)
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool, logger *zap.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Load reads all entries for a period in their original index order.
func (s *PostgresStore) Load(ctx context.Context, period edgar.Period) (*Manifest, error) {
	rows, err := s.pool.Query(ctx, `
SELECT cik, company_name, form_type, date_filed, filename, downloaded
FROM edgar_manifest
WHERE year = $1 AND quarter = $2
ORDER BY position`, period.Year, period.Quarter)
	if err != nil {
		return nil, fmt.Errorf("query manifest %s: %w", period, err)
	}
	defer rows.Close()

	m := &Manifest{Period: period}
	for rows.Next() {
		var (
			e         edgar.Entry
			dateFiled time.Time
		)
		if err := rows.Scan(&e.CIK, &e.CompanyName, &e.FormType, &dateFiled, &e.Filename, &e.Downloaded); err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		e.DateFiled = dateFiled.UTC()
		m.Entries = append(m.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", period, err)
	}
	if len(m.Entries) == 0 {
		return nil, fmt.Errorf("%w: period %s", ErrNotFound, period)
	}
	return m, nil
}

// Save replaces the period's rows in one transaction.
func (s *PostgresStore) Save(ctx context.Context, m *Manifest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx,
		`DELETE FROM edgar_manifest WHERE year = $1 AND quarter = $2`,
		m.Period.Year, m.Period.Quarter); err != nil {
		return fmt.Errorf("clear manifest %s: %w", m.Period, err)
	}
	for i, e := range m.Entries {
		if _, err := tx.Exec(ctx, `
INSERT INTO edgar_manifest (year, quarter, position, cik, company_name, form_type, date_filed, filename, downloaded)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.Period.Year, m.Period.Quarter, i,
			e.CIK, e.CompanyName, e.FormType, e.DateFiled, e.Filename, e.Downloaded); err != nil {
			return fmt.Errorf("insert manifest row: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit manifest %s: %w", m.Period, err)
	}
	return nil
}

// UpsertFromIndex parses and persists a manifest unless the period already
// has one, in which case the existing rows are returned untouched.
func (s *PostgresStore) UpsertFromIndex(ctx context.Context, period edgar.Period, raw []byte) (*Manifest, *index.Report, error) {
	existing, err := s.Load(ctx, period)
	switch {
	case err == nil:
		return existing, nil, nil
	case !errors.Is(err, ErrNotFound):
		return nil, nil, err
	}

	entries, report, err := index.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse index for %s: %w", period, err)
	}
	m := &Manifest{Period: period, Entries: entries}
	if err := s.Save(ctx, m); err != nil {
		return nil, nil, err
	}
	s.logger.Info("manifest created",
		zap.String("period", period.String()),
		zap.Int("parsed", report.Parsed),
		zap.Int("skipped_lines", report.Skipped))
	return m, report, nil
}

// MarkDownloaded updates one row's flag. The table's primary key makes this
// a single-row write, so concurrent calls for different entries are safe.
func (s *PostgresStore) MarkDownloaded(ctx context.Context, period edgar.Period, filename string, downloaded bool) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE edgar_manifest SET downloaded = $1
WHERE year = $2 AND quarter = $3 AND filename = $4`,
		downloaded, period.Year, period.Quarter, filename)
	if err != nil {
		return fmt.Errorf("mark downloaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("manifest %s has no entry for %q", period, filename)
	}
	return nil
}
