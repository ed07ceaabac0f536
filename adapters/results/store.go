package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"smefit/domain/core"
	"smefit/domain/sme"
	"smefit/internal"
	"smefit/internal/config"
	"smefit/internal/errors"
	"smefit/ports"
)

// timeLayout keeps nanosecond columns fixed width so the created_at index
// sorts chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists analysis runs in SQL. Headline columns are queryable;
// the full result travels as a JSON payload column.
type Store struct {
	db  *sqlx.DB
	log *internal.Logger
}

var _ ports.ResultStore = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	task       TEXT NOT NULL,
	montage    INTEGER NOT NULL,
	strategy   TEXT NOT NULL,
	mode       TEXT NOT NULL,
	p_recall   DOUBLE PRECISION NOT NULL,
	events     INTEGER NOT NULL,
	freqs      INTEGER NOT NULL,
	electrodes INTEGER NOT NULL,
	time_bins  INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	result     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_subject ON analysis_runs(subject);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(created_at);
`

// Open connects to the configured database and bootstraps the schema
func Open(cfg config.StoreConfig, log *internal.Logger) (*Store, error) {
	if log == nil {
		log = internal.DefaultLogger
	}
	log = log.WithTag("Store")

	var db *sqlx.DB
	var err error
	switch cfg.Driver {
	case "sqlite":
		if dir := filepath.Dir(cfg.DSN); dir != "" && cfg.DSN != ":memory:" {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, errors.Wrap(mkErr, "create database directory")
			}
		}
		db, err = sqlx.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open sqlite db")
		}
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := db.Exec(pragma); execErr != nil {
				_ = db.Close()
				return nil, errors.Wrapf(execErr, "apply pragma %q", pragma)
			}
		}
	case "postgres":
		db, err = sqlx.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres db")
		}
	default:
		return nil, errors.ConfigInvalid("unknown database driver " + cfg.Driver)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "bootstrap schema")
	}

	log.Debug("store open driver=%s", cfg.Driver)
	return &Store{db: db, log: log}, nil
}

// SaveRun inserts or replaces one run
func (s *Store) SaveRun(ctx context.Context, rec ports.RunRecord) error {
	payload, err := json.Marshal(rec.Result)
	if err != nil {
		return errors.Wrap(err, "encode result payload")
	}

	query := s.db.Rebind(`
		INSERT INTO analysis_runs (
			id, subject, task, montage, strategy, mode, p_recall,
			events, freqs, electrodes, time_bins, created_at, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			strategy = EXCLUDED.strategy,
			mode = EXCLUDED.mode,
			p_recall = EXCLUDED.p_recall,
			result = EXCLUDED.result`)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Subject.String(), rec.Task, rec.Montage,
		rec.Strategy, rec.Mode, rec.PRecall,
		rec.Events, rec.Freqs, rec.Electrodes, rec.TimeBins,
		rec.CreatedAt.Time().UTC().Format(timeLayout), string(payload))
	if err != nil {
		return errors.Wrap(err, "save run")
	}
	s.log.Debug("saved run %s subject=%s", rec.ID, rec.Subject)
	return nil
}

// GetRun loads one run with its full result payload
func (s *Store) GetRun(ctx context.Context, id core.RunID) (*ports.RunRecord, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`
		SELECT id, subject, task, montage, strategy, mode, p_recall,
		       events, freqs, electrodes, time_bins, created_at, result
		FROM analysis_runs WHERE id = ?`), id.String())

	var rec ports.RunRecord
	var idStr, subjStr, createdAt, payload string
	err := row.Scan(&idStr, &subjStr, &rec.Task, &rec.Montage,
		&rec.Strategy, &rec.Mode, &rec.PRecall,
		&rec.Events, &rec.Freqs, &rec.Electrodes, &rec.TimeBins,
		&createdAt, &payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load run")
	}

	rec.ID = core.RunID(idStr)
	rec.Subject = core.SubjectID(subjStr)
	if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
		rec.CreatedAt = core.NewTimestamp(ts)
	}

	var result sme.ContrastResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, errors.Wrap(err, "decode result payload")
	}
	rec.Result = &result
	return &rec, nil
}

// ListRuns returns payload-free summaries, newest first
func (s *Store) ListRuns(ctx context.Context, filters ports.RunFilters) ([]ports.RunSummary, error) {
	query := `
		SELECT id, subject, task, montage, strategy, mode, p_recall,
		       events, freqs, electrodes, time_bins, created_at
		FROM analysis_runs`
	var where []string
	var args []interface{}
	if filters.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, filters.Subject)
	}
	if filters.Task != "" {
		where = append(where, "task = ?")
		args = append(args, filters.Task)
	}
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "list runs")
	}
	defer rows.Close()

	var out []ports.RunSummary
	for rows.Next() {
		var sum ports.RunSummary
		var idStr, subjStr, createdAt string
		if err := rows.Scan(&idStr, &subjStr, &sum.Task, &sum.Montage,
			&sum.Strategy, &sum.Mode, &sum.PRecall,
			&sum.Events, &sum.Freqs, &sum.Electrodes, &sum.TimeBins,
			&createdAt); err != nil {
			return nil, errors.Wrap(err, "scan run summary")
		}
		sum.ID = core.RunID(idStr)
		sum.Subject = core.SubjectID(subjStr)
		if ts, perr := time.Parse(time.RFC3339Nano, createdAt); perr == nil {
			sum.CreatedAt = core.NewTimestamp(ts)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close releases the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
