package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/rank"
)

func TestWriteCreatesDayDirAndFile(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, zap.NewNop())

	entries := []rank.Entry{
		{URI: "at://did:p/app.bsky.feed.post/r1", ID: 1, Likes: 3, Reposts: 1, Score: 5, Hotness: 4.999999, LastUpdated: 100},
	}
	resolve := func(id uint64) (string, bool) {
		if id == 1 {
			return "https://bsky.app/profile/did:p/post/r1", true
		}
		return "", false
	}

	if err := w.Write(context.Background(), ReasonInitial, entries, 24, 3, resolve); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*", "*.json"))
	if err != nil {
		t.Fatalf("Glob() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("len(matches) = %d, want 1 (%v)", len(matches), matches)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if doc.Reason != ReasonInitial || len(doc.Posts) != 1 {
		t.Fatalf("doc = %+v", doc)
	}
	if doc.Posts[0].URL != "https://bsky.app/profile/did:p/post/r1" {
		t.Errorf("Posts[0].URL = %q", doc.Posts[0].URL)
	}
}

func TestRoundTo6dp(t *testing.T) {
	if got := roundTo6dp(1.0 / 3); got != 0.333333 {
		t.Errorf("roundTo6dp(1/3) = %v, want 0.333333", got)
	}
}
