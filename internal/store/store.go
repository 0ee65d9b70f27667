// Package store persists collection run history and cached provider
// snapshots, backed by SQLite or Postgres.
package store

import (
	"context"
	"time"

	"github.com/trendscope/viralscan/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Method model.Method    `json:"method,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the collection pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, method model.Method) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// SetRunResult stores the final result and marks the run complete, or
	// failed when result.Error is set.
	SetRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Snapshot cache: raw provider records keyed by strategy + input
	// fingerprint, so re-runs inside the TTL skip the scrape.
	GetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string) ([]model.RawRecord, error)
	SetCachedSnapshot(ctx context.Context, strategy model.Strategy, fingerprint string, records []model.RawRecord, ttl time.Duration) error
	DeleteExpiredSnapshots(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
