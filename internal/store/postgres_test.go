package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/change-monitor/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS snapshots`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatest_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT url, taken_at, content_hash, extracted FROM snapshots WHERE url = \$1`).
		WithArgs("https://unknown.com").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetLatest(context.Background(), "https://unknown.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatest_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	taken := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"url", "taken_at", "content_hash", "extracted"}).
		AddRow("https://acme.com", taken, "abc", []byte(`{"title":"Acme","main_text":"hello","word_count":1}`))
	mock.ExpectQuery(`FROM snapshots WHERE url = \$1 ORDER BY taken_at DESC LIMIT 1`).
		WithArgs("https://acme.com").
		WillReturnRows(rows)

	got, err := s.GetLatest(context.Background(), "https://acme.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ContentHash)
	assert.Equal(t, "Acme", got.Extracted.Title)
	assert.Equal(t, 1, got.Extracted.WordCount)
	assert.True(t, got.TakenAt.Equal(taken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLatest_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM snapshots`).
		WithArgs("https://acme.com").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetLatest(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get latest snapshot")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Put(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sn := &model.Snapshot{
		URL:         "https://acme.com",
		TakenAt:     time.Now().UTC(),
		ContentHash: "abc",
		Extracted:   model.ExtractedContent{Title: "Acme"},
	}

	mock.ExpectExec(`INSERT INTO snapshots`).
		WithArgs(pgxmock.AnyArg(), sn.URL, sn.TakenAt, sn.ContentHash, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Put(context.Background(), sn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Prune(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	cutoff := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM snapshots\s+WHERE taken_at < \$1\s+AND taken_at < \(SELECT MAX`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRun_AssignsID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	run := &model.Run{EntityID: "acme", StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "acme", run.StartedAt, run.FinishedAt, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	started := since.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"id", "entity_id", "started_at", "finished_at", "summary", "results"}).
		AddRow("run-1", "acme", started, started.Add(time.Minute),
			[]byte(`{"total_urls":2,"successes":1,"errors":1}`),
			[]byte(`[{"url":"https://acme.com","status":"success"}]`))
	mock.ExpectQuery(`WHERE 1=1 AND entity_id = \$1 AND started_at >= \$2 ORDER BY started_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("acme", since, 10, 5).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), RunFilter{EntityID: "acme", Since: since, Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, 2, runs[0].Summary.TotalURLs)
	assert.Equal(t, 0.5, runs[0].Summary.ErrorRate())
	require.Len(t, runs[0].Results, 1)
	assert.Equal(t, model.URLStatusSuccess, runs[0].Results[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE 1=1 ORDER BY started_at DESC LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id", "entity_id", "started_at", "finished_at", "summary", "results"}))

	runs, err := s.ListRuns(context.Background(), RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseCallsCloseFn(t *testing.T) {
	closed := false
	s := &PostgresStore{closeFn: func() { closed = true }}
	require.NoError(t, s.Close())
	assert.True(t, closed)
}
