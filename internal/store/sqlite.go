package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/trendscope/viralscan/internal/model"
)

// SQLiteStore implements Store on a local SQLite file. It is the default
// backend for single-machine CLI use.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs
// migrations.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, eris.Wrap(err, "store: open sqlite")
	}
	// modernc sqlite is single-writer; cap connections to avoid
	// SQLITE_BUSY churn under the serve command.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	zap.S().Debugw("sqlite store ready", "path", path)
	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS snapshot_cache (
	id          TEXT PRIMARY KEY,
	strategy    TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	records     TEXT NOT NULL,
	fetched_at  TIMESTAMP NOT NULL,
	expires_at  TIMESTAMP NOT NULL,
	UNIQUE(strategy, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_cache_expiry ON snapshot_cache(expires_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate sqlite")
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, method model.Method) (*model.Run, error) {
	if !method.Valid() {
		return nil, eris.Errorf("store: invalid method %q", method)
	}
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.NewString(),
		Method:    method,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, method, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(run.Method), string(run.Status), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: create run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "store: update run status")
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) SetRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	status := model.RunStatusComplete
	if result != nil && result.Error != "" {
		status = model.RunStatusFailed
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal run result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), string(payload), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "store: set run result")
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, method, status, result, created_at, updated_at FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("store: run %s not found", runID)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, method, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Method != "" {
		query += ` AND method = ?`
		args = append(args, string(filter.Method))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "store: list runs")
}

func (s *SQLiteStore) GetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string) ([]model.RawRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT records FROM snapshot_cache
		 WHERE strategy = ? AND fingerprint = ? AND expires_at > ?`,
		string(strategy), fingerprint, time.Now().UTC()).Scan(&payload)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get cached snapshot")
	}
	var records []model.RawRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		return nil, eris.Wrap(err, "store: decode cached snapshot")
	}
	return records, nil
}

func (s *SQLiteStore) SetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string, records []model.RawRecord, ttl time.Duration) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "store: encode snapshot")
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshot_cache (id, strategy, fingerprint, records, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(strategy, fingerprint) DO UPDATE SET
		   records = excluded.records,
		   fetched_at = excluded.fetched_at,
		   expires_at = excluded.expires_at`,
		uuid.NewString(), string(strategy), fingerprint, string(payload), now, now.Add(ttl))
	return eris.Wrap(err, "store: set cached snapshot")
}

func (s *SQLiteStore) DeleteExpiredSnapshots(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshot_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "store: delete expired snapshots")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return eris.Wrap(s.db.Close(), "store: close sqlite")
}

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		run    model.Run
		method string
		status string
		result sql.NullString
	)
	if err := row.Scan(&run.ID, &method, &status, &result, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "store: scan run")
	}
	run.Method = model.Method(method)
	run.Status = model.RunStatus(status)
	if result.Valid && result.String != "" {
		var rr model.RunResult
		if err := json.Unmarshal([]byte(result.String), &rr); err != nil {
			return nil, eris.Wrap(err, "store: decode run result")
		}
		run.Result = &rr
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "store: rows affected")
	}
	if n == 0 {
		return eris.Errorf("store: run %s not found", runID)
	}
	return nil
}
