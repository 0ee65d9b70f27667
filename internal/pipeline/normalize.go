package pipeline

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trendscope/viralscan/internal/model"
)

// Normalizer converts one provider payload into the canonical record shape.
// One implementation per collection strategy; provider shape differences
// live here and nowhere else.
type Normalizer interface {
	Strategy() model.Strategy
	// Normalize returns the canonical record, or an error when a required
	// field (id, created_at, view_count) is missing or unparseable. Errors
	// mean the record is dropped and counted as malformed, never that the
	// run aborts.
	Normalize(raw model.RawRecord) (model.VideoRecord, error)
}

// NormalizerFor returns the normalizer for a strategy.
func NormalizerFor(s model.Strategy) (Normalizer, error) {
	switch s {
	case model.StrategyDiscover:
		return discoverNormalizer{}, nil
	case model.StrategyHashtag:
		return hashtagNormalizer{}, nil
	default:
		return nil, eris.Errorf("normalize: no normalizer for strategy %q", s)
	}
}

// discoverNormalizer handles the discover-page payload shape:
// snake_case fields with a nested "author" object.
type discoverNormalizer struct{}

func (discoverNormalizer) Strategy() model.Strategy { return model.StrategyDiscover }

func (discoverNormalizer) Normalize(raw model.RawRecord) (model.VideoRecord, error) {
	id, ok := stringField(raw, "video_id", "id")
	if !ok {
		return model.VideoRecord{}, eris.New("normalize: discover record missing id")
	}

	views, err := requiredCount(raw, "view_count")
	if err != nil {
		return model.VideoRecord{}, eris.Wrapf(err, "normalize: discover record %s", id)
	}

	createdAt, err := requiredTime(raw, "create_time", "created_at")
	if err != nil {
		return model.VideoRecord{}, eris.Wrapf(err, "normalize: discover record %s", id)
	}

	rec := model.VideoRecord{
		ID:             id,
		ViewCount:      views,
		CreatedAt:      createdAt,
		Source:         model.StrategyDiscover,
		LikeCount:      optionalCount(raw, "like_count"),
		CommentCount:   optionalCount(raw, "comment_count"),
		ShareCount:     optionalCount(raw, "share_count"),
		FollowerCount:  optionalCount(raw, "follower_count", "author.followerCount"),
		AuthorVerified: boolField(raw, "is_verified", "author.verified"),
		Hashtags:       hashtagList(raw, "hashtags"),
	}
	rec.Description, _ = stringField(raw, "description")
	rec.AuthorID, _ = stringField(raw, "author_id", "author.id")
	rec.AuthorUsername, _ = stringField(raw, "author_username", "author.nickname")
	rec.MusicTitle, _ = stringField(raw, "music_title", "music.title")
	rec.VideoURL, _ = stringField(raw, "video_url", "url")
	rec.RegionHint, _ = stringField(raw, "region", "country")

	return rec, nil
}

// hashtagNormalizer handles the hashtag-crawl payload shape: camelCase
// fields with nested "stats" and "authorMeta" objects and a "challenges"
// hashtag list.
type hashtagNormalizer struct{}

func (hashtagNormalizer) Strategy() model.Strategy { return model.StrategyHashtag }

func (hashtagNormalizer) Normalize(raw model.RawRecord) (model.VideoRecord, error) {
	id, ok := stringField(raw, "id", "aweme_id")
	if !ok {
		return model.VideoRecord{}, eris.New("normalize: hashtag record missing id")
	}

	views, err := requiredCount(raw, "stats.playCount", "playCount", "viewCount")
	if err != nil {
		return model.VideoRecord{}, eris.Wrapf(err, "normalize: hashtag record %s", id)
	}

	createdAt, err := requiredTime(raw, "createTime", "create_time")
	if err != nil {
		return model.VideoRecord{}, eris.Wrapf(err, "normalize: hashtag record %s", id)
	}

	rec := model.VideoRecord{
		ID:             id,
		ViewCount:      views,
		CreatedAt:      createdAt,
		Source:         model.StrategyHashtag,
		LikeCount:      optionalCount(raw, "stats.diggCount", "diggCount"),
		CommentCount:   optionalCount(raw, "stats.commentCount", "commentCount"),
		ShareCount:     optionalCount(raw, "stats.shareCount", "shareCount"),
		FollowerCount:  optionalCount(raw, "authorMeta.fans", "authorMeta.followerCount"),
		AuthorVerified: boolField(raw, "authorMeta.verified"),
		Hashtags:       hashtagList(raw, "challenges", "hashtags"),
	}
	rec.Description, _ = stringField(raw, "desc", "description")
	rec.AuthorID, _ = stringField(raw, "authorMeta.id", "author_id")
	rec.AuthorUsername, _ = stringField(raw, "authorMeta.name", "authorMeta.nickName")
	rec.MusicTitle, _ = stringField(raw, "musicMeta.musicName", "music.title")
	rec.VideoURL, _ = stringField(raw, "webVideoUrl", "video_url")
	rec.RegionHint, _ = stringField(raw, "locationCreated", "region")

	return rec, nil
}

// lookup resolves a possibly dotted path through nested maps.
func lookup(raw model.RawRecord, path string) (any, bool) {
	var cur any = map[string]any(raw)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// stringField returns the first non-empty string at any of the paths.
func stringField(raw model.RawRecord, paths ...string) (string, bool) {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// boolField returns the first boolean at any of the paths; absent is false.
func boolField(raw model.RawRecord, paths ...string) bool {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// requiredCount parses a count field that must be present and valid.
// Unparseable counts are an error, never a silent zero: a record with a
// garbled view count must not slip past the view floor by accident.
func requiredCount(raw model.RawRecord, paths ...string) (int64, error) {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		n, err := parseCountValue(v)
		if err != nil {
			return 0, eris.Wrapf(err, "field %s", p)
		}
		return n, nil
	}
	return 0, eris.Errorf("missing required count field %s", strings.Join(paths, "|"))
}

// optionalCount parses a count field, returning 0 when absent or invalid.
// Only safe for fields no filter treats as required.
func optionalCount(raw model.RawRecord, paths ...string) int64 {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if n, err := parseCountValue(v); err == nil {
			return n
		}
	}
	return 0
}

func parseCountValue(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, eris.Errorf("negative count %g", n)
		}
		return int64(n), nil
	case int:
		if n < 0 {
			return 0, eris.Errorf("negative count %d", n)
		}
		return int64(n), nil
	case int64:
		if n < 0 {
			return 0, eris.Errorf("negative count %d", n)
		}
		return n, nil
	case string:
		return ParseCount(n)
	default:
		return 0, eris.Errorf("unsupported count type %T", v)
	}
}

// ParseCount parses provider count strings: plain integers, comma-grouped
// values ("1,200,000"), and abbreviated suffixes ("850K", "1.2M", "3B").
func ParseCount(s string) (int64, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(s))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return 0, eris.New("empty count string")
	}

	mult := int64(1)
	switch cleaned[len(cleaned)-1] {
	case 'K':
		mult = 1_000
		cleaned = cleaned[:len(cleaned)-1]
	case 'M':
		mult = 1_000_000
		cleaned = cleaned[:len(cleaned)-1]
	case 'B':
		mult = 1_000_000_000
		cleaned = cleaned[:len(cleaned)-1]
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "parse count %q", s)
	}
	if f < 0 {
		return 0, eris.Errorf("negative count %q", s)
	}

	return int64(f * float64(mult)), nil
}

// timeLayouts are the datetime formats providers have been seen to emit.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999",
}

// requiredTime parses a timestamp field that must be present and valid.
// Accepts the known datetime layouts and Unix seconds (numeric or string).
func requiredTime(raw model.RawRecord, paths ...string) (time.Time, error) {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		t, err := parseTimeValue(v)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "field %s", p)
		}
		return t, nil
	}
	return time.Time{}, eris.Errorf("missing required time field %s", strings.Join(paths, "|"))
}

func parseTimeValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		// Unix seconds as a string.
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			return unixTime(secs)
		}
		return time.Time{}, eris.Errorf("unparseable timestamp %q", t)
	case float64:
		return unixTime(t)
	case int:
		return unixTime(float64(t))
	case int64:
		return unixTime(float64(t))
	default:
		return time.Time{}, eris.Errorf("unsupported timestamp type %T", v)
	}
}

func unixTime(secs float64) (time.Time, error) {
	if secs <= 0 {
		return time.Time{}, eris.Errorf("non-positive unix timestamp %g", secs)
	}
	return time.Unix(int64(secs), 0).UTC(), nil
}

// hashtagList extracts hashtags from any of the known encodings: a string
// list, a list of objects with title/name, or a comma-separated string.
func hashtagList(raw model.RawRecord, paths ...string) []string {
	for _, p := range paths {
		v, ok := lookup(raw, p)
		if !ok {
			continue
		}
		if tags := parseHashtags(v); len(tags) > 0 {
			return tags
		}
	}
	return nil
}

func parseHashtags(v any) []string {
	var tags []string
	appendTag := func(s string) {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))
		if s != "" {
			tags = append(tags, s)
		}
	}

	switch list := v.(type) {
	case []any:
		for _, item := range list {
			switch e := item.(type) {
			case string:
				appendTag(e)
			case map[string]any:
				if title, ok := e["title"].(string); ok {
					appendTag(title)
				} else if name, ok := e["name"].(string); ok {
					appendTag(name)
				}
			}
		}
	case []string:
		for _, s := range list {
			appendTag(s)
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			appendTag(s)
		}
	}

	return tags
}
