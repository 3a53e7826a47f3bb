// Package prune implements the retention + size-based eviction sweep
// (§4.6): it walks the tally table, removes stale and overflow entries,
// cascades the removal into the active-reference caches and their KV
// rows, and reports whether anything was removed so the caller can
// schedule a deferred compaction.
package prune

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/activeref"
	"github.com/kozko2001/bsky-aggregator/internal/keys"
	"github.com/kozko2001/bsky-aggregator/internal/store"
	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

// Reader is the subset of the KV store the pruner needs to scan the
// like:/repost: prefixes for stale id references (step 3).
type Reader interface {
	NewIter(gte, lt []byte) (store.Iterator, error)
}

// Result summarizes one prune pass.
type Result struct {
	RetentionRemoved int
	OverflowRemoved  int
	RemovedIDs       map[uint64]struct{}
}

// Removed reports whether anything was removed (gate for the deferred
// compaction, §4.6 step 4).
func (r Result) Removed() bool {
	return len(r.RemovedIDs) > 0
}

// Run executes one prune pass under w (expected to be a batch scope, per
// §4.9/§4.11: "executed under one write batch").
func Run(t *tally.Table, likes, reposts *activeref.Cache, kv Reader, w store.Writer, maxTrackedPosts int, retentionWindowMS, nowMS int64, log *zap.Logger) (Result, error) {
	removedIDs := make(map[uint64]struct{})
	retentionRemoved := 0

	// Step 1: retention sweep.
	var stale []string
	t.Range(func(uri string, s *tally.Stats) bool {
		if nowMS-s.LastUpdated > retentionWindowMS {
			stale = append(stale, uri)
		}
		return true
	})
	for _, uri := range stale {
		s, ok := t.Get(uri)
		if !ok {
			continue
		}
		removedIDs[s.ID] = struct{}{}
		t.Delete(uri)
		if err := w.Delete(keys.Post(uri)); err != nil {
			log.Debug("delete post row failed", zap.String("uri", uri), zap.Error(err))
		}
		retentionRemoved++
	}

	// Step 2: size cap, oldest-first, if still over budget.
	overflowRemoved := 0
	if t.Len() > maxTrackedPosts {
		type row struct {
			uri string
			s   *tally.Stats
		}
		var rows []row
		t.Range(func(uri string, s *tally.Stats) bool {
			rows = append(rows, row{uri, s})
			return true
		})
		sort.Slice(rows, func(i, j int) bool { return rows[i].s.LastUpdated < rows[j].s.LastUpdated })

		excess := t.Len() - maxTrackedPosts
		for i := 0; i < excess && i < len(rows); i++ {
			removedIDs[rows[i].s.ID] = struct{}{}
			t.Delete(rows[i].uri)
			if err := w.Delete(keys.Post(rows[i].uri)); err != nil {
				log.Debug("delete post row failed", zap.String("uri", rows[i].uri), zap.Error(err))
			}
			overflowRemoved++
		}
	}

	result := Result{RetentionRemoved: retentionRemoved, OverflowRemoved: overflowRemoved, RemovedIDs: removedIDs}
	if len(removedIDs) == 0 {
		return result, nil
	}

	// Step 3: cascade into active caches and their KV rows.
	for _, ref := range likes.RemoveWhere(removedIDs) {
		if err := w.Delete(keys.Like(ref)); err != nil {
			log.Debug("delete like row failed", zap.String("ref", ref), zap.Error(err))
		}
	}
	for _, ref := range reposts.RemoveWhere(removedIDs) {
		if err := w.Delete(keys.Repost(ref)); err != nil {
			log.Debug("delete repost row failed", zap.String("ref", ref), zap.Error(err))
		}
	}

	likeLo, likeHi := keys.LikePrefix()
	if err := sweepPrefix(kv, w, likeLo, likeHi, removedIDs); err != nil {
		return result, err
	}
	repostLo, repostHi := keys.RepostPrefix()
	if err := sweepPrefix(kv, w, repostLo, repostHi, removedIDs); err != nil {
		return result, err
	}

	return result, nil
}

// sweepPrefix scans [gte, lt) and deletes any row whose value decodes to
// a removed post id — this catches like:/repost: refs that had already
// been evicted from the active cache before the post itself was pruned
// (§4.6 step 3, second half).
func sweepPrefix(kv Reader, w store.Writer, gte, lt []byte, removedIDs map[uint64]struct{}) error {
	it, err := kv.NewIter(gte, lt)
	if err != nil {
		return err
	}
	defer it.Close()

	var toDelete [][]byte
	for it.First(); it.Valid(); it.Next() {
		id, ok := parseUintLoose(it.Value())
		if !ok {
			continue
		}
		if _, hit := removedIDs[id]; hit {
			toDelete = append(toDelete, append([]byte(nil), it.Key()...))
		}
	}
	for _, k := range toDelete {
		if err := w.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func parseUintLoose(data []byte) (uint64, bool) {
	var n uint64
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return 0, false
	}
	neg := false
	for i, c := range s {
		if c < '0' || c > '9' {
			if i == 0 && (c == '-' || c == '+') {
				if c == '-' {
					neg = true
				}
				continue
			}
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if neg || s == "" {
		return 0, false
	}
	return n, true
}
