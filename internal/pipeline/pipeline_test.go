package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscope/viralscan/internal/config"
	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/registry"
	"github.com/trendscope/viralscan/internal/store"
	"github.com/trendscope/viralscan/pkg/brightdata"
)

// fakeProvider serves canned snapshots keyed by the discover_by mode,
// completing immediately.
type fakeProvider struct {
	mu       sync.Mutex
	byURL    []map[string]any
	byKw     []map[string]any
	triggers []string
	failWith string
}

func (f *fakeProvider) TriggerDiscoverByURL(ctx context.Context, urls []string, country string, n int) (*brightdata.TriggerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, "url")
	return &brightdata.TriggerResponse{SnapshotID: "snap-url"}, nil
}

func (f *fakeProvider) TriggerDiscoverByKeyword(ctx context.Context, keywords []string, country string, n int) (*brightdata.TriggerResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, "keyword")
	return &brightdata.TriggerResponse{SnapshotID: "snap-kw"}, nil
}

func (f *fakeProvider) SnapshotStatus(ctx context.Context, id string) (*brightdata.SnapshotStatus, error) {
	if f.failWith != "" {
		return &brightdata.SnapshotStatus{Status: "failed", Error: f.failWith}, nil
	}
	return &brightdata.SnapshotStatus{Status: "completed"}, nil
}

func (f *fakeProvider) SnapshotResults(ctx context.Context, id string) ([]map[string]any, error) {
	if id == "snap-kw" {
		return f.byKw, nil
	}
	return f.byURL, nil
}

func (f *fakeProvider) triggerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.triggers)
}

func testPipelineConfig() *config.Config {
	return &config.Config{
		BrightData: config.BrightDataConfig{PollIntervalSec: 1, PollMaxWaitSecs: 10},
		Collect: config.CollectConfig{
			DiscoverURLs:     []string{"https://www.tiktok.com/discover"},
			Hashtags:         []string{"バズ"},
			PostsPerSource:   100,
			SnapshotTTLHours: 6,
		},
		Filter: config.FilterConfig{
			MinViews:          500_000,
			TimeRangeHours:    24,
			ExcludeVerified:   true,
			Languages:         []string{"ja"},
			TargetRegion:      "JP",
			MinLanguageScore:  0.3,
			MinDescriptionLen: 5,
			MinEngagementRate: 0.001,
			FutureTimestamps:  config.FutureClamp,
			RankBy:            "views",
		},
	}
}

func newTestPipeline(t *testing.T, cfg *config.Config, provider brightdata.Client, opts ...PipelineOption) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	opts = append([]PipelineOption{WithClock(func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	})}, opts...)
	reg, err := registry.Default()
	require.NoError(t, err)
	profile, ok := reg.Profile("ja")
	require.True(t, ok)

	p, err := New(cfg, provider, st, profile, opts...)
	require.NoError(t, err)
	return p, st
}

func discoverRaw(id string, views string, hoursAgo float64) map[string]any {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC).Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return map[string]any{
		"video_id":       id,
		"view_count":     views,
		"create_time":    created.Format(time.RFC3339),
		"like_count":     "50000",
		"follower_count": "20000",
		"description":    "渋谷で見つけた絶品ラーメン屋さん",
		"author":         map[string]any{"id": "u-" + id, "nickname": "tokyo_" + id},
		"region":         "JP",
	}
}

func hashtagRaw(id string, views float64, hoursAgo float64) map[string]any {
	created := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC).Add(-time.Duration(hoursAgo * float64(time.Hour)))
	return map[string]any{
		"id":              id,
		"createTime":      float64(created.Unix()),
		"desc":            "大阪の新しいカフェが話題になっています",
		"stats":           map[string]any{"playCount": views, "diggCount": 40000.0},
		"authorMeta":      map[string]any{"id": "u-" + id, "name": "osaka_" + id, "verified": false, "fans": 20000.0},
		"locationCreated": "JP",
	}
}

func TestPipelineHybridRun(t *testing.T) {
	provider := &fakeProvider{
		byURL: []map[string]any{
			discoverRaw("d1", "1.2M", 5),
			discoverRaw("d2", "100K", 3), // below view threshold
			{"view_count": "1M"},         // malformed: no id
		},
		byKw: []map[string]any{
			hashtagRaw("h1", 2_000_000, 8),
			hashtagRaw("d1", 900_000, 5), // duplicate of discover d1
		},
	}

	var exported *model.RunResult
	p, st := newTestPipeline(t, testPipelineConfig(), provider,
		WithExporter(func(result *model.RunResult, collectedAt time.Time) ([]string, error) {
			exported = result
			return []string{"out.xlsx"}, nil
		}))

	run, err := p.Run(context.Background(), model.MethodHybrid)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)

	stats := run.Result.Stats
	assert.Equal(t, 5, stats.RawCount)
	assert.Equal(t, 1, stats.Rejections[model.RejectMalformed])
	assert.Equal(t, 3, stats.AfterDedup) // d1 (merged), d2, h1
	assert.Equal(t, 2, stats.AfterFilter)
	assert.Equal(t, 1, stats.Rejections[model.RejectViewCount])

	// Ranked by views: h1 (2M) before d1 (1.2M).
	require.Len(t, run.Result.Videos, 2)
	assert.Equal(t, "h1", run.Result.Videos[0].ID)
	assert.Equal(t, "d1", run.Result.Videos[1].ID)
	// Dedup kept the discover copy of d1.
	assert.Equal(t, model.StrategyDiscover, run.Result.Videos[1].Source)

	require.NotNil(t, exported)
	assert.Equal(t, run.Result.Stats, exported.Stats)

	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	require.NotNil(t, stored.Result)
	assert.Len(t, stored.Result.Videos, 2)
}

func TestPipelineSnapshotCacheSkipsTrigger(t *testing.T) {
	provider := &fakeProvider{byURL: []map[string]any{discoverRaw("d1", "1.5M", 2)}}
	cfg := testPipelineConfig()
	p, _ := newTestPipeline(t, cfg, provider)

	_, err := p.Run(context.Background(), model.MethodDiscover)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.triggerCount())

	// Second run with identical inputs hits the cache.
	_, err = p.Run(context.Background(), model.MethodDiscover)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.triggerCount())
}

func TestPipelineEmptyInputs(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Collect.DiscoverURLs = nil
	provider := &fakeProvider{}
	p, _ := newTestPipeline(t, cfg, provider)

	run, err := p.Run(context.Background(), model.MethodDiscover)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 0, run.Result.Stats.RawCount)
	assert.Empty(t, run.Result.Videos)
	assert.Equal(t, 0, provider.triggerCount())
}

func TestPipelineProviderFailureMarksRunFailed(t *testing.T) {
	provider := &fakeProvider{failWith: "dataset quota exceeded"}
	p, st := newTestPipeline(t, testPipelineConfig(), provider)

	run, err := p.Run(context.Background(), model.MethodHashtags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dataset quota exceeded")
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)

	stored, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	assert.Contains(t, stored.Result.Error, "dataset quota exceeded")
}

func TestPipelineExportFailureMarksRunFailed(t *testing.T) {
	provider := &fakeProvider{byURL: []map[string]any{discoverRaw("d1", "1.5M", 2)}}
	p, _ := newTestPipeline(t, testPipelineConfig(), provider,
		WithExporter(func(*model.RunResult, time.Time) ([]string, error) {
			return nil, eris.New("disk full")
		}))

	run, err := p.Run(context.Background(), model.MethodDiscover)
	require.Error(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Result.Error, "disk full")
}

func TestFingerprintIgnoresInputOrder(t *testing.T) {
	a := fingerprint([]string{"tag1", "tag2"}, 100)
	b := fingerprint([]string{"tag2", "tag1"}, 100)
	c := fingerprint([]string{"tag1", "tag2"}, 50)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
