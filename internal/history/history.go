// Package history persists drift reports to a SQLite log so past verdicts
// can be inspected after the fact. The detector core never touches it.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/marginwatch/driftmd/pkg/drift"
)

const schema = `
CREATE TABLE IF NOT EXISTS drift_reports (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at     TEXT    NOT NULL,
    run_id         TEXT    NOT NULL,
    is_drift       INTEGER NOT NULL,
    margin         REAL    NOT NULL,
    margin_density REAL    NOT NULL,
    range_low      REAL,
    range_high     REAL,
    direction      TEXT,
    meta           TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_drift_reports_created_at ON drift_reports (created_at);
`

// Store manages drift report persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one persisted drift report.
type Entry struct {
	ID        int64
	CreatedAt time.Time
	RunID     string
	Result    drift.Result
}

// Open initializes or connects to the history database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append records one drift report under a watch-run identifier.
func (s *Store) Append(ctx context.Context, runID string, result drift.Result) error {
	meta, err := json.Marshal(result.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	var rangeLow, rangeHigh any
	if r := result.Data.DensityRange; r != nil {
		rangeLow, rangeHigh = r.Low, r.High
	}
	var direction any
	if result.Data.Direction != nil {
		direction = string(*result.Data.Direction)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO drift_reports (
            created_at, run_id, is_drift, margin, margin_density,
            range_low, range_high, direction, meta
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339Nano),
		runID,
		result.Data.IsDrift,
		result.Data.Margin,
		result.Data.MarginDensity,
		rangeLow,
		rangeHigh,
		direction,
		string(meta),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// Recent returns the n most recent reports, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, created_at, run_id, is_drift, margin, margin_density,
                range_low, range_high, direction, meta
         FROM drift_reports ORDER BY id DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			createdAt string
			rangeLow  sql.NullFloat64
			rangeHigh sql.NullFloat64
			direction sql.NullString
			meta      string
		)
		if err := rows.Scan(
			&entry.ID, &createdAt, &entry.RunID,
			&entry.Result.Data.IsDrift, &entry.Result.Data.Margin,
			&entry.Result.Data.MarginDensity,
			&rangeLow, &rangeHigh, &direction, &meta,
		); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}

		entry.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		if rangeLow.Valid && rangeHigh.Valid {
			entry.Result.Data.DensityRange = &drift.Range{
				Low:  rangeLow.Float64,
				High: rangeHigh.Float64,
			}
		}
		if direction.Valid {
			dir := drift.Direction(direction.String)
			entry.Result.Data.Direction = &dir
		}
		if err := json.Unmarshal([]byte(meta), &entry.Result.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
