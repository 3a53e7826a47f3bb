// Package snapshot writes the periodic JSON leaderboard document (§4.8).
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kozko2001/bsky-aggregator/internal/rank"
)

// Reason identifies why a snapshot was triggered.
type Reason string

const (
	ReasonConnected Reason = "connected"
	ReasonInitial   Reason = "initial"
	ReasonInterval  Reason = "interval"
	ReasonFinal     Reason = "final"
)

// postEntry is one leaderboard row in the snapshot document.
type postEntry struct {
	Rank        int     `json:"rank"`
	URI         string  `json:"uri"`
	URL         string  `json:"url,omitempty"`
	PostID      uint64  `json:"postId"`
	Likes       int64   `json:"likes"`
	Reposts     int64   `json:"reposts"`
	Score       int64   `json:"score"`
	Hotness     float64 `json:"hotness"`
	LastUpdated int64   `json:"lastUpdated"`
}

// document is the full snapshot JSON payload.
type document struct {
	GeneratedAt    string      `json:"generatedAt"`
	Reason         Reason      `json:"reason"`
	WindowHours    float64     `json:"windowHours"`
	HalfLifeHours  float64     `json:"halfLifeHours"`
	TopCount       int         `json:"topCount"`
	Posts          []postEntry `json:"posts"`
}

// URLResolver maps a post id to its cached display URL.
type URLResolver func(id uint64) (string, bool)

// Writer serializes snapshot writes through a single-lane queue so
// overlapping triggers (connected + interval, say) collapse into one
// write rather than racing on the filesystem (§4.8).
type Writer struct {
	dir  string
	log  *zap.Logger
	flight singleflight.Group
}

// New builds a Writer rooted at dir (the configured snapshot directory).
func New(dir string, log *zap.Logger) *Writer {
	return &Writer{dir: dir, log: log.Named("snapshotter")}
}

// Write builds and persists a snapshot for the given entries. Concurrent
// calls collapse onto a single in-flight write via singleflight, since
// each call regenerates the same content from current state — losing a
// duplicate trigger costs nothing.
func (w *Writer) Write(ctx context.Context, reason Reason, entries []rank.Entry, windowHours, halfLifeHours float64, resolveURL URLResolver) error {
	_, err, _ := w.flight.Do("snapshot", func() (interface{}, error) {
		return nil, w.writeOnce(reason, entries, windowHours, halfLifeHours, resolveURL)
	})
	return err
}

func (w *Writer) writeOnce(reason Reason, entries []rank.Entry, windowHours, halfLifeHours float64, resolveURL URLResolver) error {
	now := time.Now().UTC()

	posts := make([]postEntry, 0, len(entries))
	for i, e := range entries {
		url, _ := resolveURL(e.ID)
		posts = append(posts, postEntry{
			Rank:        i + 1,
			URI:         e.URI,
			URL:         url,
			PostID:      e.ID,
			Likes:       e.Likes,
			Reposts:     e.Reposts,
			Score:       e.Score,
			Hotness:     roundTo6dp(e.Hotness),
			LastUpdated: e.LastUpdated,
		})
	}

	doc := document{
		GeneratedAt:   now.Format(time.RFC3339),
		Reason:        reason,
		WindowHours:   windowHours,
		HalfLifeHours: halfLifeHours,
		TopCount:      len(entries),
		Posts:         posts,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dayDir := filepath.Join(w.dir, now.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return fmt.Errorf("mkdir snapshot dir: %w", err)
	}

	name := now.Format("2006-01-02T15-04Z") + ".json"
	path := filepath.Join(dayDir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot file: %w", err)
	}

	w.log.Debug("wrote snapshot", zap.String("path", path), zap.String("reason", string(reason)), zap.Int("posts", len(posts)))
	return nil
}

func roundTo6dp(f float64) float64 {
	const scale = 1e6
	return math.Round(f*scale) / scale
}
