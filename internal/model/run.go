package model

import "time"

// Method describes how a collection run sources raw records.
type Method string

const (
	MethodDiscover Method = "discover"
	MethodHashtags Method = "hashtags"
	MethodHybrid   Method = "hybrid"
)

// Strategies returns the collection strategies a method runs, in the fixed
// priority order used for deterministic dedup tie-breaking.
func (m Method) Strategies() []Strategy {
	switch m {
	case MethodDiscover:
		return []Strategy{StrategyDiscover}
	case MethodHashtags:
		return []Strategy{StrategyHashtag}
	case MethodHybrid:
		return []Strategy{StrategyDiscover, StrategyHashtag}
	default:
		return nil
	}
}

// Valid reports whether m is a known collection method.
func (m Method) Valid() bool {
	return len(m.Strategies()) > 0
}

// RunStatus represents the current state of a collection run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusCollecting RunStatus = "collecting"
	RunStatusFiltering  RunStatus = "filtering"
	RunStatusExporting  RunStatus = "exporting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RejectReason classifies why a record was dropped.
type RejectReason string

const (
	RejectMalformed  RejectReason = "malformed"
	RejectViewCount  RejectReason = "view_count"
	RejectTimeWindow RejectReason = "time_window"
	RejectVerified   RejectReason = "verified"
	RejectLanguage   RejectReason = "language"
	RejectRegion     RejectReason = "region"
	RejectQuality    RejectReason = "quality"
)

// RunStats carries the operator-facing counters for one run.
type RunStats struct {
	RawCount    int                  `json:"raw_count"`
	AfterDedup  int                  `json:"after_dedup"`
	AfterFilter int                  `json:"after_filter"`
	PerStrategy map[Strategy]int     `json:"per_strategy"`
	Rejections  map[RejectReason]int `json:"rejections"`
	ElapsedMS   int64                `json:"elapsed_ms"`
}

// FilterRate returns the percentage of raw records that survived filtering.
func (s RunStats) FilterRate() float64 {
	if s.RawCount == 0 {
		return 0
	}
	return float64(s.AfterFilter) / float64(s.RawCount) * 100
}

// Run represents a single collection run.
type Run struct {
	ID        string     `json:"id"`
	Method    Method     `json:"method"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult is the durable outcome of a run: the surviving records plus
// their statistics. This is what the export writers consume.
type RunResult struct {
	Stats  RunStats      `json:"stats"`
	Videos []VideoRecord `json:"videos"`
	Error  string        `json:"error,omitempty"`
}
