package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscope/viralscan/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresCreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "hybrid", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), model.MethodHybrid)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateRunStatusNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("collecting", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusCollecting)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetRunResultMarksFailed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("failed", pgxmock.AnyArg(), pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetRunResult(context.Background(), "run-1", &model.RunResult{Error: "provider unreachable"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	result, err := json.Marshal(&model.RunResult{
		Stats:  model.RunStats{RawCount: 50, AfterFilter: 3},
		Videos: []model.VideoRecord{{ID: "v1", ViewCount: 2_000_000}},
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, method, status, result, created_at, updated_at FROM runs WHERE id`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "method", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", "discover", "complete", result, now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.MethodDiscover, run.Method)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 50, run.Result.Stats.RawCount)
	require.Len(t, run.Result.Videos, 1)
	assert.EqualValues(t, 2_000_000, run.Result.Videos[0].ViewCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetRunNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, method, status, result, created_at, updated_at FROM runs WHERE id`).
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows([]string{"id", "method", "status", "result", "created_at", "updated_at"}))

	_, err := s.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, method, status, result, created_at, updated_at FROM runs WHERE 1=1 AND status`).
		WithArgs("complete", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "method", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", "hybrid", "complete", []byte(nil), now, now).
			AddRow("run-2", "discover", "complete", []byte(nil), now.Add(-time.Hour), now.Add(-time.Hour)))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Nil(t, runs[0].Result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSnapshotCacheRoundTrip(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO snapshot_cache`).
		WithArgs(pgxmock.AnyArg(), "discover", "fp-9", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedSnapshot(context.Background(), model.StrategyDiscover, "fp-9",
		[]model.RawRecord{{"video_id": "a1"}}, time.Hour)
	require.NoError(t, err)

	payload, err := json.Marshal([]model.RawRecord{{"video_id": "a1"}})
	require.NoError(t, err)
	mock.ExpectQuery(`SELECT records FROM snapshot_cache`).
		WithArgs("discover", "fp-9").
		WillReturnRows(pgxmock.NewRows([]string{"records"}).AddRow(payload))

	got, err := s.GetCachedSnapshot(context.Background(), model.StrategyDiscover, "fp-9")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0]["video_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCacheMissReturnsNil(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT records FROM snapshot_cache`).
		WithArgs("hashtag", "fp-0").
		WillReturnRows(pgxmock.NewRows([]string{"records"}))

	got, err := s.GetCachedSnapshot(context.Background(), model.StrategyHashtag, "fp-0")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpiredSnapshots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM snapshot_cache WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteExpiredSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
