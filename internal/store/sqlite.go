package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/change-monitor/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are
// stored as unix nanoseconds so ordering survives sub-second runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	url          TEXT NOT NULL,
	taken_at     INTEGER NOT NULL,
	content_hash TEXT NOT NULL,
	extracted    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	entity_id   TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	summary     TEXT NOT NULL,
	results     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_url_taken ON snapshots(url, taken_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_entity ON runs(entity_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetLatest(ctx context.Context, url string) (*model.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT url, taken_at, content_hash, extracted FROM snapshots
		 WHERE url = ? ORDER BY taken_at DESC LIMIT 1`,
		url,
	)

	var snap model.Snapshot
	var takenAt int64
	var extractedJSON string
	err := row.Scan(&snap.URL, &takenAt, &snap.ContentHash, &extractedJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get latest snapshot %s", url)
	}
	if err := json.Unmarshal([]byte(extractedJSON), &snap.Extracted); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal extracted")
	}
	snap.TakenAt = time.Unix(0, takenAt).UTC()
	return &snap, nil
}

func (s *SQLiteStore) Put(ctx context.Context, snap *model.Snapshot) error {
	extractedJSON, err := json.Marshal(snap.Extracted)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extracted")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, url, taken_at, content_hash, extracted) VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), snap.URL, snap.TakenAt.UnixNano(), snap.ContentHash, string(extractedJSON),
	)
	return eris.Wrapf(err, "sqlite: insert snapshot %s", snap.URL)
}

func (s *SQLiteStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots
		 WHERE taken_at < ?
		   AND taken_at < (SELECT MAX(s2.taken_at) FROM snapshots s2 WHERE s2.url = snapshots.url)`,
		olderThan.UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune snapshots")
	}
	n, err := res.RowsAffected()
	return n, eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, entity_id, started_at, finished_at, summary, results) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.EntityID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		string(summaryJSON), string(resultsJSON),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, entity_id, started_at, finished_at, summary, results FROM runs WHERE 1=1`
	var args []any

	if filter.EntityID != "" {
		query += ` AND entity_id = ?`
		args = append(args, filter.EntityID)
	}
	if !filter.Since.IsZero() {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UnixNano())
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var startedAt, finishedAt int64
	var summaryJSON, resultsJSON string

	if err := row.Scan(&r.ID, &r.EntityID, &startedAt, &finishedAt, &summaryJSON, &resultsJSON); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	if err := json.Unmarshal([]byte(resultsJSON), &r.Results); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal results")
	}
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.FinishedAt = time.Unix(0, finishedAt).UTC()
	return &r, nil
}
