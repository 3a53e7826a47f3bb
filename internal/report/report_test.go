package report

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/rank"
)

func TestLineEmptyPrintsNoDataYet(t *testing.T) {
	s := Sample{At: time.Now()}
	line := Line(s, 0, 0, 0, nil, func(uint64) (string, bool) { return "", false })
	if !strings.Contains(line, "No data yet") {
		t.Errorf("Line() = %q, want it to contain %q", line, "No data yet")
	}
}

func TestLineWithEntries(t *testing.T) {
	entries := []rank.Entry{
		{URI: "at://did:p/app.bsky.feed.post/r1", ID: 1, Likes: 3, Reposts: 1, Score: 5, Hotness: 4.9, LastUpdated: 1000},
	}
	resolve := func(id uint64) (string, bool) { return "https://bsky.app/profile/did:p/post/r1", true }
	line := Line(Sample{At: time.Now()}, 12.5, 10, 2, entries, resolve)
	if !strings.Contains(line, "https://bsky.app/profile/did:p/post/r1") {
		t.Errorf("Line() missing url: %q", line)
	}
	if !strings.Contains(line, "3 likes") {
		t.Errorf("Line() missing likes: %q", line)
	}
}

func TestCPUPercentFirstCallIsZero(t *testing.T) {
	r := New(zap.NewNop())
	got := r.CPUPercent(Sample{CPUTime: 5 * time.Second, At: time.Now()})
	if got != 0 {
		t.Errorf("first CPUPercent() = %v, want 0 (no baseline)", got)
	}
}

func TestCPUPercentComputesDelta(t *testing.T) {
	r := New(zap.NewNop())
	t0 := time.Now()
	r.CPUPercent(Sample{CPUTime: 1 * time.Second, At: t0})
	got := r.CPUPercent(Sample{CPUTime: 2 * time.Second, At: t0.Add(2 * time.Second)})
	want := 50.0
	if got < want-0.01 || got > want+0.01 {
		t.Errorf("CPUPercent() = %v, want ~%v", got, want)
	}
}
