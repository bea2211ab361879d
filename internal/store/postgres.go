package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/change-monitor/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it too.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// queries holds the hot-path statements. pgx caches their prepared form per
// connection.
var queries = map[string]string{
	"get_latest_snapshot": `SELECT url, taken_at, content_hash, extracted FROM snapshots WHERE url = $1 ORDER BY taken_at DESC LIMIT 1`,
	"insert_snapshot":     `INSERT INTO snapshots (id, url, taken_at, content_hash, extracted) VALUES ($1, $2, $3, $4, $5)`,
	"insert_run":          `INSERT INTO runs (id, entity_id, started_at, finished_at, summary, results) VALUES ($1, $2, $3, $4, $5, $6)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url          TEXT NOT NULL,
	taken_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	content_hash TEXT NOT NULL,
	extracted    JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	entity_id   TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	summary     JSONB NOT NULL,
	results     JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_url_taken ON snapshots(url, taken_at DESC);
CREATE INDEX IF NOT EXISTS idx_runs_entity ON runs(entity_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, url string) (*model.Snapshot, error) {
	row := s.pool.QueryRow(ctx, queries["get_latest_snapshot"], url)

	var snap model.Snapshot
	var extractedJSON []byte
	err := row.Scan(&snap.URL, &snap.TakenAt, &snap.ContentHash, &extractedJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get latest snapshot %s", url)
	}
	if err := json.Unmarshal(extractedJSON, &snap.Extracted); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal extracted")
	}
	snap.TakenAt = snap.TakenAt.UTC()
	return &snap, nil
}

func (s *PostgresStore) Put(ctx context.Context, snap *model.Snapshot) error {
	extractedJSON, err := json.Marshal(snap.Extracted)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extracted")
	}
	_, err = s.pool.Exec(ctx, queries["insert_snapshot"],
		uuid.New().String(), snap.URL, snap.TakenAt, snap.ContentHash, extractedJSON,
	)
	return eris.Wrapf(err, "postgres: insert snapshot %s", snap.URL)
}

func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM snapshots
		 WHERE taken_at < $1
		   AND taken_at < (SELECT MAX(s2.taken_at) FROM snapshots s2 WHERE s2.url = snapshots.url)`,
		olderThan,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune snapshots")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}
	_, err = s.pool.Exec(ctx, queries["insert_run"],
		run.ID, run.EntityID, run.StartedAt, run.FinishedAt, summaryJSON, resultsJSON,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, entity_id, started_at, finished_at, summary, results FROM runs WHERE 1=1`
	var args []any
	argN := 1

	if filter.EntityID != "" {
		query += fmt.Sprintf(` AND entity_id = $%d`, argN)
		args = append(args, filter.EntityID)
		argN++
	}
	if !filter.Since.IsZero() {
		query += fmt.Sprintf(` AND started_at >= $%d`, argN)
		args = append(args, filter.Since)
		argN++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argN)
	args = append(args, filter.limit())
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var summaryJSON, resultsJSON []byte
		if err := rows.Scan(&r.ID, &r.EntityID, &r.StartedAt, &r.FinishedAt, &summaryJSON, &resultsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
