package rank

import (
	"testing"

	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

func TestScore(t *testing.T) {
	if got := Score(3, 2); got != 7 {
		t.Errorf("Score(3,2) = %d, want 7", got)
	}
}

func TestHotnessZeroScore(t *testing.T) {
	if got := Hotness(0, 0, 1000, 6); got != 0 {
		t.Errorf("Hotness() = %v, want 0", got)
	}
	if got := Hotness(-5, 0, 1000, 6); got != 0 {
		t.Errorf("Hotness(negative score) = %v, want 0", got)
	}
}

func TestHotnessDecaysWithAge(t *testing.T) {
	now := int64(10 * 3_600_000)
	fresh := Hotness(10, now, now, 6)
	stale := Hotness(10, 0, now, 6)
	if !(fresh > stale) {
		t.Errorf("expected fresh hotness %v > stale hotness %v", fresh, stale)
	}
	if fresh != 10 {
		t.Errorf("Hotness with zero age = %v, want 10", fresh)
	}
}

func TestHotnessNonFiniteFallsBackToScore(t *testing.T) {
	// Zero age over a zero half-life is 0/0, so the decay is NaN.
	got := Hotness(10, 1000, 1000, 0)
	if got != 10 {
		t.Errorf("Hotness with zero half-life = %v, want fallback to score 10", got)
	}
}

func TestTopNOrdering(t *testing.T) {
	table := tally.NewTable()
	now := int64(1_000_000)

	table.Set("at://a", &tally.Stats{Likes: 5, Reposts: 0, LastUpdated: now, ID: 1})
	table.Set("at://b", &tally.Stats{Likes: 5, Reposts: 0, LastUpdated: now - 1, ID: 2})
	table.Set("at://c", &tally.Stats{Likes: 1, Reposts: 10, LastUpdated: now, ID: 3})

	entries := TopN(table, 10, now, 6)
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	if entries[0].URI != "at://c" {
		t.Errorf("entries[0].URI = %q, want at://c (highest score)", entries[0].URI)
	}
	if entries[1].URI != "at://a" {
		t.Errorf("entries[1].URI = %q, want at://a (more recent than b)", entries[1].URI)
	}
}

func TestTopNTruncates(t *testing.T) {
	table := tally.NewTable()
	for i := 0; i < 5; i++ {
		table.Set(string(rune('a'+i)), &tally.Stats{Likes: int64(i), LastUpdated: 1})
	}
	entries := TopN(table, 2, 1, 6)
	if len(entries) != 2 {
		t.Errorf("len(entries) = %d, want 2", len(entries))
	}
}

func TestHotnessMonotonicInHalfLife(t *testing.T) {
	now := int64(5 * 3_600_000)
	shortHL := Hotness(10, 0, now, 1)
	longHL := Hotness(10, 0, now, 100)
	if !(longHL > shortHL) {
		t.Errorf("expected longer half-life to decay slower: short=%v long=%v", shortHL, longHL)
	}
}
