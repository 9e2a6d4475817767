package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"milkcast/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Ingestion is one ledger entry for a written partition.
type Ingestion struct {
	Key           string
	Granularity   domain.Granularity
	Date          time.Time
	Rows          int
	SkippedBlocks int
	Checksum      string
	RunID         string
	IngestedAt    time.Time
}

// ModelRun is one ledger entry for a training run.
type ModelRun struct {
	RunID          string
	Trainer        string
	ReferenceMonth time.Time
	RMSE           float64
	Promoted       bool
	CreatedAt      time.Time
}

// Ledger records ingestion and training history in SQLite. The partition
// store stays authoritative for whether a partition exists.
type Ledger struct {
	db *sql.DB
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS ingestions (
	partition_key  TEXT PRIMARY KEY,
	granularity    TEXT NOT NULL,
	date           TEXT NOT NULL,
	row_count      INTEGER NOT NULL,
	skipped_blocks INTEGER NOT NULL,
	checksum       TEXT NOT NULL,
	run_id         TEXT NOT NULL,
	ingested_at    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS model_runs (
	run_id          TEXT NOT NULL,
	trainer         TEXT NOT NULL,
	reference_month TEXT NOT NULL,
	rmse            REAL NOT NULL,
	promoted        INTEGER NOT NULL,
	created_at      TEXT NOT NULL,
	PRIMARY KEY (run_id, trainer)
);`

// OpenLedger opens (or creates) a SQLite database at dbPath and ensures the
// ledger tables exist.
func OpenLedger(dbPath string) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// ---------------------------------------------------------------------------
// Ingestions
// ---------------------------------------------------------------------------

// RecordIngestion upserts the entry for in.Key. Re-ingesting a partition
// replaces its row.
func (l *Ledger) RecordIngestion(ctx context.Context, in Ingestion) error {
	if in.RunID == "" {
		in.RunID = NewRunID()
	}
	if in.IngestedAt.IsZero() {
		in.IngestedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO ingestions (partition_key, granularity, date, row_count, skipped_blocks, checksum, run_id, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(partition_key) DO UPDATE SET
	granularity = excluded.granularity,
	date = excluded.date,
	row_count = excluded.row_count,
	skipped_blocks = excluded.skipped_blocks,
	checksum = excluded.checksum,
	run_id = excluded.run_id,
	ingested_at = excluded.ingested_at`,
		in.Key, string(in.Granularity), in.Date.Format(domain.DateLayout), in.Rows,
		in.SkippedBlocks, in.Checksum, in.RunID, in.IngestedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording ingestion %s: %w", in.Key, err)
	}
	return nil
}

// GetIngestion returns the entry for key, or an error wrapping
// domain.ErrObjectNotFound.
func (l *Ledger) GetIngestion(ctx context.Context, key string) (*Ingestion, error) {
	row := l.db.QueryRowContext(ctx, `
SELECT partition_key, granularity, date, row_count, skipped_blocks, checksum, run_id, ingested_at
FROM ingestions WHERE partition_key = ?`, key)
	in, err := scanIngestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestion %s: %w", key, domain.ErrObjectNotFound)
	}
	return in, err
}

// ListIngestions returns entries of granularity g dated on or after since,
// ordered by date.
func (l *Ledger) ListIngestions(ctx context.Context, g domain.Granularity, since time.Time) ([]Ingestion, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT partition_key, granularity, date, row_count, skipped_blocks, checksum, run_id, ingested_at
FROM ingestions WHERE granularity = ? AND date >= ? ORDER BY date`,
		string(g), since.Format(domain.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ingestion
	for rows.Next() {
		in, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIngestion(s scanner) (*Ingestion, error) {
	var (
		in       Ingestion
		g, d, at string
	)
	if err := s.Scan(&in.Key, &g, &d, &in.Rows, &in.SkippedBlocks, &in.Checksum, &in.RunID, &at); err != nil {
		return nil, err
	}
	in.Granularity = domain.Granularity(g)
	var err error
	if in.Date, err = time.Parse(domain.DateLayout, d); err != nil {
		return nil, fmt.Errorf("ledger date %q: %w", d, err)
	}
	if in.IngestedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, fmt.Errorf("ledger timestamp %q: %w", at, err)
	}
	return &in, nil
}

// ---------------------------------------------------------------------------
// Model runs
// ---------------------------------------------------------------------------

// RecordModelRun inserts or replaces one trainer's result within a run.
func (l *Ledger) RecordModelRun(ctx context.Context, run ModelRun) error {
	if run.RunID == "" {
		run.RunID = NewRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	promoted := 0
	if run.Promoted {
		promoted = 1
	}
	_, err := l.db.ExecContext(ctx, `
INSERT OR REPLACE INTO model_runs (run_id, trainer, reference_month, rmse, promoted, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Trainer, run.ReferenceMonth.Format("2006-01"), run.RMSE, promoted,
		run.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording model run %s: %w", run.RunID, err)
	}
	return nil
}

// ListModelRuns returns the runs for a reference month, best RMSE first.
func (l *Ledger) ListModelRuns(ctx context.Context, month time.Time) ([]ModelRun, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT run_id, trainer, reference_month, rmse, promoted, created_at
FROM model_runs WHERE reference_month = ? ORDER BY rmse, run_id`, month.Format("2006-01"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelRun
	for rows.Next() {
		var (
			run      ModelRun
			m, at    string
			promoted int
		)
		if err := rows.Scan(&run.RunID, &run.Trainer, &m, &run.RMSE, &promoted, &at); err != nil {
			return nil, err
		}
		if run.ReferenceMonth, err = time.Parse("2006-01", m); err != nil {
			return nil, err
		}
		if run.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		run.Promoted = promoted != 0
		out = append(out, run)
	}
	return out, rows.Err()
}
