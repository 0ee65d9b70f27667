package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/trendscope/viralscan/internal/config"
	"github.com/trendscope/viralscan/internal/model"
	"github.com/trendscope/viralscan/internal/registry"
)

// RegionPredicate decides whether a record belongs to the target region.
// Provider payloads carry no reliable region field, so this is pluggable;
// the default is a keyword heuristic (see defaultRegionPredicate).
type RegionPredicate func(rec model.VideoRecord) bool

// FilterEngine applies the virality policy to annotated records. All
// predicates must pass; missing optional fields fail the predicate that
// needs them rather than erroring (fail-closed).
type FilterEngine struct {
	cfg         config.FilterConfig
	profile     *registry.Profile
	region      RegionPredicate
	targetInSet bool
}

// FilterOption configures a FilterEngine.
type FilterOption func(*FilterEngine)

// WithRegionPredicate replaces the default region heuristic.
func WithRegionPredicate(p RegionPredicate) FilterOption {
	return func(e *FilterEngine) {
		e.region = p
	}
}

// NewFilterEngine validates the policy and builds the engine. An invalid
// FilterConfig is a configuration error: surfaced here, before any record
// is processed.
func NewFilterEngine(cfg config.FilterConfig, profile *registry.Profile, opts ...FilterOption) (*FilterEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tags := make([]language.Tag, 0, len(cfg.Languages))
	for _, code := range cfg.Languages {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, eris.Wrapf(err, "filter: invalid language code %q", code)
		}
		tags = append(tags, tag)
	}

	matcher := language.NewMatcher(tags)
	_, _, confidence := matcher.Match(language.Make(profile.Language))

	e := &FilterEngine{
		cfg:         cfg,
		profile:     profile,
		targetInSet: confidence >= language.High,
	}
	e.region = e.defaultRegionPredicate
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Apply returns the records passing every predicate, preserving relative
// order, plus a count of rejections per first-failing predicate.
func (e *FilterEngine) Apply(records []model.VideoRecord) ([]model.VideoRecord, map[model.RejectReason]int) {
	rejections := make(map[model.RejectReason]int)
	var passed []model.VideoRecord

	for _, rec := range records {
		if reason, ok := e.check(rec); !ok {
			rejections[reason]++
			continue
		}
		passed = append(passed, rec)
	}

	return passed, rejections
}

// check runs the predicate chain and reports the first failure. Predicate
// order matches the rejection reasons operators see: time window first,
// then views, verification, language, region, quality.
func (e *FilterEngine) check(rec model.VideoRecord) (model.RejectReason, bool) {
	if !e.passTime(rec) {
		return model.RejectTimeWindow, false
	}
	if rec.ViewCount < e.cfg.MinViews {
		return model.RejectViewCount, false
	}
	if e.cfg.ExcludeVerified && rec.AuthorVerified {
		return model.RejectVerified, false
	}
	if !e.passLanguage(rec) {
		return model.RejectLanguage, false
	}
	if !e.region(rec) {
		return model.RejectRegion, false
	}
	if !e.passQuality(rec) {
		return model.RejectQuality, false
	}
	return "", true
}

func (e *FilterEngine) passTime(rec model.VideoRecord) bool {
	sig := rec.Signals
	if sig == nil {
		return false
	}
	if sig.Suspect && e.cfg.FutureTimestamps == config.FutureReject {
		return false
	}
	return sig.HoursSincePost <= e.cfg.TimeRangeHours
}

func (e *FilterEngine) passLanguage(rec model.VideoRecord) bool {
	sig := rec.Signals
	if sig == nil || !e.targetInSet {
		return false
	}
	if sig.LanguageScore < e.cfg.MinLanguageScore {
		return false
	}
	return sig.KeywordScore >= e.cfg.MinKeywordScore
}

// defaultRegionPredicate: a region hint matching the target passes
// outright; an exclusion keyword anywhere in the text vetoes; otherwise an
// authenticity blend of language score, keyword score, and a regular-user
// bonus must clear the bar. Records with no follower data get the reduced
// bonus (fail-closed).
func (e *FilterEngine) defaultRegionPredicate(rec model.VideoRecord) bool {
	if rec.RegionHint != "" {
		return strings.EqualFold(rec.RegionHint, e.cfg.TargetRegion)
	}

	text := textContent(rec)
	for _, kw := range e.profile.ExcludeKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return false
		}
	}

	sig := rec.Signals
	if sig == nil {
		return false
	}

	score := 0.4*sig.LanguageScore + 0.3*sig.KeywordScore
	if rec.FollowerCount > 0 && rec.FollowerCount < e.profile.RegularUserMax {
		score += 0.3
	} else {
		score += 0.1
	}

	return score > authenticityBar
}

// authenticityBar is the blended-score threshold for region membership
// when no region hint is present.
const authenticityBar = 0.4

func (e *FilterEngine) passQuality(rec model.VideoRecord) bool {
	if len([]rune(rec.Description)) < e.cfg.MinDescriptionLen {
		return false
	}
	if e.profile.IsSpam(rec.Description) {
		return false
	}
	sig := rec.Signals
	if sig == nil {
		return false
	}
	if rec.ViewCount > 0 && sig.EngagementRate < e.cfg.MinEngagementRate {
		return false
	}
	return true
}
