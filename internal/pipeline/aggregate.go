package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/trendscope/viralscan/internal/model"
)

// Batch is the normalized output of one collection strategy plus the
// counters the run statistics need.
type Batch struct {
	Strategy  model.Strategy
	Records   []model.VideoRecord
	RawCount  int
	Malformed int
}

// MergeBatches concatenates batch records in the given strategy priority
// order. Batches whose strategy is not in the priority list keep their
// input order after the prioritized ones. The resulting order feeds the
// dedup tie-break, so the same priority list always yields the same kept
// instance for cross-strategy duplicates; final membership after dedup is
// a set union either way.
func MergeBatches(batches []Batch, priority []model.Strategy) []model.VideoRecord {
	rank := make(map[model.Strategy]int, len(priority))
	for i, s := range priority {
		rank[s] = i
	}

	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iOK := rank[ordered[i].Strategy]
		rj, jOK := rank[ordered[j].Strategy]
		if iOK != jOK {
			return iOK
		}
		return ri < rj
	})

	total := 0
	for _, b := range ordered {
		total += len(b.Records)
	}
	merged := make([]model.VideoRecord, 0, total)
	for _, b := range ordered {
		merged = append(merged, b.Records...)
	}
	return merged
}

// Rank sorts records by the configured sort key, in place, stably:
// "views" (descending, default), "engagement" (descending), or "recent"
// (newest first). Records without signals sort last for signal keys.
func Rank(records []model.VideoRecord, by string) {
	switch by {
	case "engagement":
		sort.SliceStable(records, func(i, j int) bool {
			return sigOf(records[i]).EngagementRate > sigOf(records[j]).EngagementRate
		})
	case "recent":
		sort.SliceStable(records, func(i, j int) bool {
			hi, hj := sigOf(records[i]).HoursSincePost, sigOf(records[j]).HoursSincePost
			if hi != hj {
				return hi < hj
			}
			return false
		})
	default: // views
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].ViewCount > records[j].ViewCount
		})
	}
}

var zeroSignals = model.DerivedSignals{HoursSincePost: 1 << 20}

func sigOf(rec model.VideoRecord) *model.DerivedSignals {
	if rec.Signals == nil {
		return &zeroSignals
	}
	return rec.Signals
}

// BuildStats assembles the run statistics from the per-strategy batches
// and the pipeline stage counts.
func BuildStats(batches []Batch, afterDedup, afterFilter int, rejections map[model.RejectReason]int, elapsed time.Duration) model.RunStats {
	stats := model.RunStats{
		AfterDedup:  afterDedup,
		AfterFilter: afterFilter,
		PerStrategy: make(map[model.Strategy]int, len(batches)),
		Rejections:  rejections,
		ElapsedMS:   elapsed.Milliseconds(),
	}
	if stats.Rejections == nil {
		stats.Rejections = make(map[model.RejectReason]int)
	}
	for _, b := range batches {
		stats.RawCount += b.RawCount
		stats.PerStrategy[b.Strategy] += len(b.Records)
		if b.Malformed > 0 {
			stats.Rejections[model.RejectMalformed] += b.Malformed
		}
	}
	return stats
}

// Summarize renders the summary-sheet rows for a final record set.
func Summarize(videos []model.VideoRecord, stats model.RunStats, collectedAt time.Time) []model.SummaryEntry {
	entries := []model.SummaryEntry{
		{Label: "Collected at", Value: collectedAt.UTC().Format(time.RFC3339)},
		{Label: "Raw records", Value: fmt.Sprintf("%d", stats.RawCount)},
		{Label: "After dedup", Value: fmt.Sprintf("%d", stats.AfterDedup)},
		{Label: "Viral videos", Value: fmt.Sprintf("%d", stats.AfterFilter)},
		{Label: "Filter rate", Value: fmt.Sprintf("%.1f%%", stats.FilterRate())},
		{Label: "Elapsed", Value: fmt.Sprintf("%dms", stats.ElapsedMS)},
	}

	for _, s := range []model.Strategy{model.StrategyDiscover, model.StrategyHashtag} {
		if n, ok := stats.PerStrategy[s]; ok {
			entries = append(entries, model.SummaryEntry{
				Label: fmt.Sprintf("From %s", s),
				Value: fmt.Sprintf("%d", n),
			})
		}
	}

	if len(videos) == 0 {
		return entries
	}

	var totalViews, maxViews int64
	var totalEngagement float64
	verified := 0
	langCounts := make(map[string]int)
	for _, v := range videos {
		totalViews += v.ViewCount
		if v.ViewCount > maxViews {
			maxViews = v.ViewCount
		}
		if v.AuthorVerified {
			verified++
		}
		if v.Signals != nil {
			totalEngagement += v.Signals.EngagementRate
			langCounts[v.Signals.DetectedLang]++
		}
	}

	topLang, topLangN := "und", 0
	for lang, n := range langCounts {
		if n > topLangN || (n == topLangN && lang < topLang) {
			topLang, topLangN = lang, n
		}
	}

	n := int64(len(videos))
	entries = append(entries,
		model.SummaryEntry{Label: "Mean views", Value: fmt.Sprintf("%d", totalViews/n)},
		model.SummaryEntry{Label: "Max views", Value: fmt.Sprintf("%d", maxViews)},
		model.SummaryEntry{Label: "Mean engagement rate", Value: fmt.Sprintf("%.4f", totalEngagement/float64(n))},
		model.SummaryEntry{Label: "Verified authors", Value: fmt.Sprintf("%d", verified)},
		model.SummaryEntry{Label: "Dominant language", Value: topLang},
	)

	return entries
}
