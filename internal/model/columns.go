package model

import (
	"strconv"
	"strings"
	"time"
)

// Columns is the stable, ordered field list every serializer consumes.
// Changing order or names is a breaking change for downstream sheets.
var Columns = []string{
	"video_id",
	"author_id",
	"author_username",
	"description",
	"view_count",
	"like_count",
	"comment_count",
	"share_count",
	"engagement_rate",
	"language_score",
	"keyword_score",
	"detected_language",
	"hours_since_post",
	"created_at",
	"video_url",
	"music_title",
	"hashtags",
	"verified",
	"follower_count",
	"region",
	"source_strategy",
	"collected_at",
}

// Row renders the record in Columns order. collectedAt is the run's
// reference timestamp, not the wall clock.
func (r VideoRecord) Row(collectedAt time.Time) []string {
	sig := r.Signals
	if sig == nil {
		sig = &DerivedSignals{}
	}

	verified := ""
	if r.AuthorVerified {
		verified = "yes"
	}

	return []string{
		r.ID,
		r.AuthorID,
		r.AuthorUsername,
		r.Description,
		strconv.FormatInt(r.ViewCount, 10),
		strconv.FormatInt(r.LikeCount, 10),
		strconv.FormatInt(r.CommentCount, 10),
		strconv.FormatInt(r.ShareCount, 10),
		strconv.FormatFloat(sig.EngagementRate, 'f', 4, 64),
		strconv.FormatFloat(sig.LanguageScore, 'f', 3, 64),
		strconv.FormatFloat(sig.KeywordScore, 'f', 3, 64),
		sig.DetectedLang,
		strconv.FormatFloat(sig.HoursSincePost, 'f', 1, 64),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.VideoURL,
		r.MusicTitle,
		formatHashtags(r.Hashtags),
		verified,
		strconv.FormatInt(r.FollowerCount, 10),
		r.RegionHint,
		string(r.Source),
		collectedAt.UTC().Format(time.RFC3339),
	}
}

func formatHashtags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = "#" + strings.TrimPrefix(t, "#")
	}
	return strings.Join(parts, ", ")
}

// SummaryEntry is one row of the run summary sheet.
type SummaryEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
}
