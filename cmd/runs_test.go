package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trendscope/viralscan/internal/model"
)

func TestComputeRunStats(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID: "r1", Status: model.RunStatusComplete,
			CreatedAt: base, UpdatedAt: base.Add(90 * time.Second),
			Result: &model.RunResult{Stats: model.RunStats{RawCount: 200, AfterFilter: 10}},
		},
		{
			ID: "r2", Status: model.RunStatusComplete,
			CreatedAt: base, UpdatedAt: base.Add(30 * time.Second),
			Result: &model.RunResult{Stats: model.RunStats{RawCount: 100, AfterFilter: 5}},
		},
		{ID: "r3", Status: model.RunStatusFailed, CreatedAt: base, UpdatedAt: base},
		{ID: "r4", Status: model.RunStatusCollecting, CreatedAt: base, UpdatedAt: base},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Other)
	assert.Equal(t, 15, s.TotalViral)
	assert.InDelta(t, 60.0, s.AvgDurSecs, 0.01)
	assert.InDelta(t, 5.0, s.AvgFilterPct, 0.01) // (5% + 5%) / 2
}

func TestComputeRunStatsEmpty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Zero(t, s.AvgDurSecs)
	assert.Zero(t, s.AvgFilterPct)
}

func TestFormatRunsList(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID: "0195c1a2-dead-beef-0000-123456789abc", Method: model.MethodHybrid,
			Status: model.RunStatusComplete, CreatedAt: base, UpdatedAt: base.Add(time.Minute),
			Result: &model.RunResult{Stats: model.RunStats{RawCount: 150, AfterFilter: 7}},
		},
		{
			ID: "short", Method: model.MethodDiscover,
			Status: model.RunStatusFailed, CreatedAt: base, UpdatedAt: base,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "0195c1a2")
	assert.NotContains(t, out, "dead-beef")
	assert.Contains(t, out, "hybrid")
	assert.Contains(t, out, "150")
	assert.Contains(t, out, "7")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2026-03-14 09:00")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 3, Complete: 2, Failed: 1, TotalViral: 9, AvgDurSecs: 45.5, AvgFilterPct: 4.2})
	out := buf.String()

	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "Viral videos:")
	assert.Contains(t, out, "45.5s")
	assert.Contains(t, out, "4.2%")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("123456789"))
	assert.Equal(t, "short", truncateID("short"))
}
