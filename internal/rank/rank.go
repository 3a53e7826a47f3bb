// Package rank computes post hotness and the top-N leaderboard (§4.5).
package rank

import (
	"math"
	"sort"

	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

// Entry is one row of the top-N leaderboard.
type Entry struct {
	URI         string
	ID          uint64
	Likes       int64
	Reposts     int64
	LastUpdated int64
	Score       int64
	Hotness     float64
}

// Score computes S = likes + 2*reposts.
func Score(likes, reposts int64) int64 {
	return likes + 2*reposts
}

// Hotness computes H = S * exp(-max(0, (now-lastUpdated)/3600000) / halfLifeHours).
// Falls back to S (not 0) when S<=0 is false but the decay term is
// non-finite, and to 0 when S<=0 (§4.5).
func Hotness(score int64, lastUpdated, nowMS int64, halfLifeHours float64) float64 {
	if score <= 0 {
		return 0
	}
	ageHours := math.Max(0, float64(nowMS-lastUpdated)/3_600_000)
	decay := math.Exp(-ageHours / halfLifeHours)
	h := float64(score) * decay
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return float64(score)
	}
	return h
}

// BuildEntry derives a leaderboard Entry from a tally row.
func BuildEntry(uri string, s *tally.Stats, nowMS int64, halfLifeHours float64) Entry {
	score := Score(s.Likes, s.Reposts)
	return Entry{
		URI:         uri,
		ID:          s.ID,
		Likes:       s.Likes,
		Reposts:     s.Reposts,
		LastUpdated: s.LastUpdated,
		Score:       score,
		Hotness:     Hotness(score, s.LastUpdated, nowMS, halfLifeHours),
	}
}

// TopN returns the top n entries from the tally table ordered by
// (-H, -S, -lastUpdated, URI), building the full candidate list, sorting,
// then truncating (§4.5: N is tiny, a single pass is adequate). The URI
// tiebreak makes the order deterministic for fully-tied entries, since
// map iteration order (via tally.Table.Range) is not.
func TopN(t *tally.Table, n int, nowMS int64, halfLifeHours float64) []Entry {
	entries := make([]Entry, 0, t.Len())
	t.Range(func(uri string, s *tally.Stats) bool {
		entries = append(entries, BuildEntry(uri, s, nowMS, halfLifeHours))
		return true
	})

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Hotness != b.Hotness {
			return a.Hotness > b.Hotness
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LastUpdated != b.LastUpdated {
			return a.LastUpdated > b.LastUpdated
		}
		return a.URI < b.URI
	})

	if n < len(entries) {
		entries = entries[:n]
	}
	return entries
}
