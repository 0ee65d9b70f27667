package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscope/viralscan/internal/config"
	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/pipeline"
	"github.com/trendscope/viralscan/internal/registry"
	"github.com/trendscope/viralscan/internal/store"
)

// newTestEnv builds a pipelineEnv over a throwaway sqlite store. The
// config has no collection inputs, so webhook runs complete without
// touching the provider client.
func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg, err := registry.Default()
	require.NoError(t, err)
	profile, ok := reg.Profile("ja")
	require.True(t, ok)

	testCfg := &config.Config{
		Filter: config.FilterConfig{
			MinViews:         500_000,
			TimeRangeHours:   24,
			Languages:        []string{"ja"},
			TargetRegion:     "JP",
			FutureTimestamps: config.FutureClamp,
			RankBy:           "views",
		},
	}
	p, err := pipeline.New(testCfg, nil, st, profile)
	require.NoError(t, err)

	return &pipelineEnv{Pipeline: p, Store: st}
}

func TestServeHealth(t *testing.T) {
	router := newRouter(context.Background(), newTestEnv(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeWebhookCollectAccepted(t *testing.T) {
	router := newRouter(context.Background(), newTestEnv(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/collect", strings.NewReader(`{"method":"discover"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "discover", body["method"])
}

func TestServeWebhookCollectDefaultsToHybrid(t *testing.T) {
	router := newRouter(context.Background(), newTestEnv(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/collect", strings.NewReader(`{}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "hybrid")
}

func TestServeWebhookCollectRejectsBadInput(t *testing.T) {
	router := newRouter(context.Background(), newTestEnv(t))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/collect", strings.NewReader(`{"method":"scrape-everything"}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook/collect", strings.NewReader(`not json`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeListRuns(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(context.Background(), env)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	run, err := env.Store.CreateRun(context.Background(), model.MethodDiscover)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestServeGetRun(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(context.Background(), env)

	run, err := env.Store.CreateRun(context.Background(), model.MethodHashtags)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, model.MethodHashtags, got.Method)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
