package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/registry"
)

func jaProfile(t *testing.T) *registry.Profile {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	p, ok := reg.Profile("ja")
	require.True(t, ok)
	return p
}

var signalNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestComputeEngagementRate(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	rec := sc.Compute(model.VideoRecord{
		ViewCount: 1_000_000, LikeCount: 80_000, CommentCount: 20_000,
		CreatedAt: signalNow.Add(-time.Hour),
	}, signalNow)
	require.NotNil(t, rec.Signals)
	assert.InDelta(t, 0.1, rec.Signals.EngagementRate, 1e-9)
}

func TestComputeEngagementRateZeroViews(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	rec := sc.Compute(model.VideoRecord{
		LikeCount: 500, CreatedAt: signalNow.Add(-time.Hour),
	}, signalNow)
	assert.Zero(t, rec.Signals.EngagementRate)
}

func TestComputeLanguageScore(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	pure := sc.Compute(model.VideoRecord{Description: "今日は渋谷でラーメン", CreatedAt: signalNow}, signalNow)
	assert.Equal(t, 1.0, pure.Signals.LanguageScore)
	assert.Equal(t, "ja", pure.Signals.DetectedLang)

	english := sc.Compute(model.VideoRecord{Description: "just vibes", CreatedAt: signalNow}, signalNow)
	assert.Zero(t, english.Signals.LanguageScore)
	assert.Equal(t, "und", english.Signals.DetectedLang)

	empty := sc.Compute(model.VideoRecord{CreatedAt: signalNow}, signalNow)
	assert.Zero(t, empty.Signals.LanguageScore)

	// Whitespace is excluded from the denominator: 4 of 8 runes Japanese.
	mixed := sc.Compute(model.VideoRecord{Description: "東京 ROCK 渋谷", CreatedAt: signalNow}, signalNow)
	assert.InDelta(t, 0.5, mixed.Signals.LanguageScore, 1e-9)
	assert.Equal(t, "ja", mixed.Signals.DetectedLang)
}

func TestComputeKeywordScore(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	// Three distinct region keywords across description and hashtags.
	rec := sc.Compute(model.VideoRecord{
		Description: "東京のラーメン",
		Hashtags:    []string{"寿司"},
		CreatedAt:   signalNow,
	}, signalNow)
	assert.InDelta(t, 3.0/5.0, rec.Signals.KeywordScore, 1e-9)

	// A keyword repeated in several fields counts once.
	repeat := sc.Compute(model.VideoRecord{
		Description: "東京東京東京",
		Hashtags:    []string{"東京"},
		MusicTitle:  "東京ソング",
		CreatedAt:   signalNow,
	}, signalNow)
	assert.InDelta(t, 1.0/5.0, repeat.Signals.KeywordScore, 1e-9)

	none := sc.Compute(model.VideoRecord{Description: "hello", CreatedAt: signalNow}, signalNow)
	assert.Zero(t, none.Signals.KeywordScore)
}

func TestComputeKeywordScoreSaturates(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	rec := sc.Compute(model.VideoRecord{
		Description: "東京 大阪 京都 渋谷 新宿 原宿 秋葉原",
		CreatedAt:   signalNow,
	}, signalNow)
	assert.Equal(t, 1.0, rec.Signals.KeywordScore)
}

func TestComputeHoursSincePost(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	rec := sc.Compute(model.VideoRecord{CreatedAt: signalNow.Add(-30 * time.Hour)}, signalNow)
	assert.InDelta(t, 30, rec.Signals.HoursSincePost, 1e-9)
	assert.False(t, rec.Signals.Suspect)
}

func TestComputeFutureTimestampClampsAndFlags(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))

	rec := sc.Compute(model.VideoRecord{CreatedAt: signalNow.Add(2 * time.Hour)}, signalNow)
	assert.Zero(t, rec.Signals.HoursSincePost)
	assert.True(t, rec.Signals.Suspect)
}

func TestComputeIsDeterministic(t *testing.T) {
	sc := NewSignalComputer(jaProfile(t))
	in := model.VideoRecord{
		Description: "大阪グルメ", ViewCount: 100, LikeCount: 5,
		CreatedAt: signalNow.Add(-3 * time.Hour),
	}
	a := sc.Compute(in, signalNow)
	b := sc.Compute(in, signalNow)
	assert.Equal(t, *a.Signals, *b.Signals)
}
