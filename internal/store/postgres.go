package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trendscope/viralscan/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses. pgxmock's pool
// satisfies it too, which is what the tests rely on.
type pgPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store on a pgx connection pool, for shared
// deployments behind the serve command.
type PostgresStore struct {
	pool pgPool
}

// NewPostgresStore connects to dsn, verifies the connection, and runs
// migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres dsn")
	}
	cfg.MaxConns = 8
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	zap.S().Debugw("postgres store ready", "max_conns", cfg.MaxConns)
	return s, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         UUID PRIMARY KEY,
	method     TEXT NOT NULL,
	status     TEXT NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

CREATE TABLE IF NOT EXISTS snapshot_cache (
	id          UUID PRIMARY KEY,
	strategy    TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	records     JSONB NOT NULL,
	fetched_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	UNIQUE(strategy, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_cache_expiry ON snapshot_cache(expires_at);
`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return eris.Wrap(err, "store: migrate postgres")
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, method model.Method) (*model.Run, error) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, method, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Method), string(run.Status), run.CreatedAt, run.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "store: create run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "store: update run status")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) SetRunResult(ctx context.Context, runID string, result *model.RunResult) error {
	status := model.RunStatusComplete
	if result != nil && result.Error != "" {
		status = model.RunStatusFailed
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "store: marshal run result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		string(status), payload, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrap(err, "store: set run result")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, method, status, result, created_at, updated_at FROM runs WHERE id = $1`, runID)
	run, err := scanPgRun(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("store: run %s not found", runID)
	}
	return run, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, method, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return placeholder(len(args))
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Method != "" {
		query += ` AND method = ` + arg(string(filter.Method))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY created_at DESC LIMIT ` + arg(limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "store: list runs")
}

func (s *PostgresStore) GetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string) ([]model.RawRecord, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT records FROM snapshot_cache
		 WHERE strategy = $1 AND fingerprint = $2 AND expires_at > now()`,
		string(strategy), fingerprint).Scan(&payload)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get cached snapshot")
	}
	var records []model.RawRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, eris.Wrap(err, "store: decode cached snapshot")
	}
	return records, nil
}

func (s *PostgresStore) SetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string, records []model.RawRecord, ttl time.Duration) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return eris.Wrap(err, "store: encode snapshot")
	}
	now := time.Now().UTC()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshot_cache (id, strategy, fingerprint, records, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (strategy, fingerprint) DO UPDATE SET
		   records = EXCLUDED.records,
		   fetched_at = EXCLUDED.fetched_at,
		   expires_at = EXCLUDED.expires_at`,
		uuid.NewString(), string(strategy), fingerprint, payload, now, now.Add(ttl))
	return eris.Wrap(err, "store: set cached snapshot")
}

func (s *PostgresStore) DeleteExpiredSnapshots(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshot_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "store: delete expired snapshots")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var (
		run    model.Run
		method string
		status string
		result []byte
	)
	if err := row.Scan(&run.ID, &method, &status, &result, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "store: scan run")
	}
	run.Method = model.Method(method)
	run.Status = model.RunStatus(status)
	if len(result) > 0 && string(result) != "null" {
		var rr model.RunResult
		if err := json.Unmarshal(result, &rr); err != nil {
			return nil, eris.Wrap(err, "store: decode run result")
		}
		run.Result = &rr
	}
	return &run, nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
