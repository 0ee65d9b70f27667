package pipeline

import (
	"strings"
	"time"
	"unicode"

	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/registry"
)

// SignalComputer annotates records with derived scores. It is pure: the
// reference timestamp is injected by the caller and the wall clock is
// never read here.
type SignalComputer struct {
	profile *registry.Profile
}

// NewSignalComputer builds a computer scoring against one language profile.
func NewSignalComputer(profile *registry.Profile) *SignalComputer {
	return &SignalComputer{profile: profile}
}

// Compute returns rec with DerivedSignals attached, evaluated against now.
// A created_at after now clamps hours_since_post to 0 and flags the record
// suspect; whether suspect records are dropped is the filter's policy.
func (s *SignalComputer) Compute(rec model.VideoRecord, now time.Time) model.VideoRecord {
	sig := model.DerivedSignals{
		EngagementRate: engagementRate(rec),
		LanguageScore:  s.languageScore(rec.Description),
		KeywordScore:   s.keywordScore(rec),
	}

	hours := now.Sub(rec.CreatedAt).Hours()
	if hours < 0 {
		hours = 0
		sig.Suspect = true
	}
	sig.HoursSincePost = hours

	sig.DetectedLang = "und"
	if sig.LanguageScore >= detectThreshold {
		sig.DetectedLang = s.profile.Language
	}

	rec.Signals = &sig
	return rec
}

// detectThreshold is the script fraction at which a description is
// attributed to the profile language.
const detectThreshold = 0.3

func engagementRate(rec model.VideoRecord) float64 {
	if rec.ViewCount == 0 {
		return 0
	}
	return float64(rec.LikeCount+rec.CommentCount) / float64(rec.ViewCount)
}

// languageScore is the fraction of non-whitespace description runes that
// belong to the profile's scripts. Empty descriptions score 0.
func (s *SignalComputer) languageScore(description string) float64 {
	total, matched := 0, 0
	for _, r := range description {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if s.profile.InScript(r) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

// keywordScore counts distinct region keywords appearing anywhere in the
// record's text, normalized by the profile's cap and clamped to 1.
func (s *SignalComputer) keywordScore(rec model.VideoRecord) float64 {
	text := textContent(rec)
	if text == "" {
		return 0
	}

	matches := 0
	for _, kw := range s.profile.RegionKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matches++
		}
	}

	score := float64(matches) / float64(s.profile.KeywordCap)
	if score > 1 {
		score = 1
	}
	return score
}

// textContent joins the searchable text of a record, lowercased:
// description, hashtags, music title, and author display name.
func textContent(rec model.VideoRecord) string {
	parts := make([]string, 0, 3+len(rec.Hashtags))
	if rec.Description != "" {
		parts = append(parts, rec.Description)
	}
	parts = append(parts, rec.Hashtags...)
	if rec.MusicTitle != "" {
		parts = append(parts, rec.MusicTitle)
	}
	if rec.AuthorUsername != "" {
		parts = append(parts, rec.AuthorUsername)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
