package pipeline

import "github.com/trendscope/viralscan/internal/model"

// Dedupe collapses records sharing an id into one record each, preserving
// the position of the first occurrence. Callers must supply records in the
// fixed strategy priority order so tie-breaking stays deterministic.
//
// When the same id appears more than once the more complete instance wins
// (most populated optional fields); on a completeness tie the first-seen
// instance wins. The winner is then backfilled with any fields only the
// loser carried, so partial payloads from different strategies merge
// instead of one overwriting the other.
func Dedupe(records []model.VideoRecord) []model.VideoRecord {
	if len(records) == 0 {
		return nil
	}

	out := make([]model.VideoRecord, 0, len(records))
	byID := make(map[string]int, len(records))

	for _, rec := range records {
		idx, seen := byID[rec.ID]
		if !seen {
			byID[rec.ID] = len(out)
			out = append(out, rec)
			continue
		}

		kept := out[idx]
		if rec.Completeness() > kept.Completeness() {
			out[idx] = mergeDuplicate(rec, kept)
		} else {
			out[idx] = mergeDuplicate(kept, rec)
		}
	}

	return out
}

// mergeDuplicate backfills fields the winner lacks from the loser and
// unions hashtag sets. The winner's identity, counts, and provenance are
// kept wherever both records carry a value.
func mergeDuplicate(winner, loser model.VideoRecord) model.VideoRecord {
	if winner.Description == "" {
		winner.Description = loser.Description
	}
	if winner.LikeCount == 0 {
		winner.LikeCount = loser.LikeCount
	}
	if winner.CommentCount == 0 {
		winner.CommentCount = loser.CommentCount
	}
	if winner.ShareCount == 0 {
		winner.ShareCount = loser.ShareCount
	}
	if winner.AuthorID == "" {
		winner.AuthorID = loser.AuthorID
	}
	if winner.AuthorUsername == "" {
		winner.AuthorUsername = loser.AuthorUsername
	}
	if winner.FollowerCount == 0 {
		winner.FollowerCount = loser.FollowerCount
	}
	if winner.MusicTitle == "" {
		winner.MusicTitle = loser.MusicTitle
	}
	if winner.VideoURL == "" {
		winner.VideoURL = loser.VideoURL
	}
	if winner.RegionHint == "" {
		winner.RegionHint = loser.RegionHint
	}
	// Either record reporting a verified author marks the merge verified;
	// failing open here would let excluded accounts back in.
	winner.AuthorVerified = winner.AuthorVerified || loser.AuthorVerified
	winner.Hashtags = unionTags(winner.Hashtags, loser.Hashtags)

	return winner
}

func unionTags(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, tag := range append(append([]string{}, a...), b...) {
		if !seen[tag] {
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
