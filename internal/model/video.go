package model

import (
	"strings"
	"time"
)

// Strategy identifies the collection method that produced a record.
type Strategy string

const (
	StrategyDiscover Strategy = "discover"
	StrategyHashtag  Strategy = "hashtag"
)

// RawRecord is an opaque provider payload. Field names and value types vary
// per collection strategy; only the strategy's normalizer may interpret it.
type RawRecord map[string]any

// VideoRecord is the canonical shape every raw payload is normalized into.
// ID, CreatedAt, and ViewCount are required; everything else is optional and
// may be backfilled during dedup merging.
type VideoRecord struct {
	ID             string    `json:"id"`
	Description    string    `json:"description"`
	ViewCount      int64     `json:"view_count"`
	LikeCount      int64     `json:"like_count"`
	CommentCount   int64     `json:"comment_count"`
	ShareCount     int64     `json:"share_count"`
	CreatedAt      time.Time `json:"created_at"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	AuthorVerified bool      `json:"author_verified"`
	FollowerCount  int64     `json:"follower_count"`
	MusicTitle     string    `json:"music_title"`
	Hashtags       []string  `json:"hashtags,omitempty"`
	VideoURL       string    `json:"video_url"`
	RegionHint     string    `json:"region_hint"`
	Source         Strategy  `json:"source_strategy"`

	Signals *DerivedSignals `json:"signals,omitempty"`
}

// DerivedSignals holds per-record scores computed against the run's
// reference timestamp. Attached by the signal computer, never parsed
// from provider payloads.
type DerivedSignals struct {
	EngagementRate float64 `json:"engagement_rate"`
	LanguageScore  float64 `json:"language_score"`
	KeywordScore   float64 `json:"keyword_score"`
	HoursSincePost float64 `json:"hours_since_post"`
	DetectedLang   string  `json:"detected_language"`
	Suspect        bool    `json:"suspect,omitempty"` // created_at was in the future of "now"
}

// Completeness counts populated optional fields. Dedup uses it to decide
// which duplicate instance to keep.
func (r VideoRecord) Completeness() int {
	n := 0
	if r.Description != "" {
		n++
	}
	if r.LikeCount > 0 {
		n++
	}
	if r.CommentCount > 0 {
		n++
	}
	if r.ShareCount > 0 {
		n++
	}
	if r.AuthorID != "" {
		n++
	}
	if r.AuthorUsername != "" {
		n++
	}
	if r.FollowerCount > 0 {
		n++
	}
	if r.MusicTitle != "" {
		n++
	}
	if len(r.Hashtags) > 0 {
		n++
	}
	if r.VideoURL != "" {
		n++
	}
	if r.RegionHint != "" {
		n++
	}
	return n
}

// HasHashtag reports whether the record carries the given tag
// (case-insensitive, leading '#' ignored).
func (r VideoRecord) HasHashtag(tag string) bool {
	want := normalizeTag(tag)
	for _, h := range r.Hashtags {
		if normalizeTag(h) == want {
			return true
		}
	}
	return false
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimLeft(tag, "#"))
}
