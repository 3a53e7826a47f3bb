// Package recovery replays the KV store at startup to rebuild the
// in-memory tally, registry, and active-reference caches before the
// ingestor connects (§4.10). It never aborts on a bad row: malformed or
// irreconcilable rows are logged and deleted.
package recovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/activeref"
	"github.com/kozko2001/bsky-aggregator/internal/keys"
	"github.com/kozko2001/bsky-aggregator/internal/registry"
	"github.com/kozko2001/bsky-aggregator/internal/store"
	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

// Reader is the KV surface recovery scans.
type Reader interface {
	Get(key []byte) (value []byte, found bool, err error)
	NewIter(gte, lt []byte) (store.Iterator, error)
}

// Report summarizes one recovery pass for the startup log line.
type Report struct {
	PostIDRows     int
	PostURIRows    int
	PostURLRows    int
	TallyRows      int
	StaleRemoved   int
	LikeRows       int
	RepostRows     int
	MalformedRows  int
	Elapsed        time.Duration
}

// StaleRemovedAny reports whether step 9's deferred-compaction gate
// should fire.
func (r Report) StaleRemovedAny() bool { return r.StaleRemoved > 0 }

// Run executes the nine recovery steps under w (a batch scope) and
// returns a summary. kv is read through separately from w so rewritten
// rows are visible only after the scope flushes, matching §4.10's
// "executed under a write batch so repairs apply atomically".
func Run(kv Reader, w store.Writer, reg *registry.Registry, t *tally.Table, likes, reposts *activeref.Cache, retentionWindowMS, nowMS int64, log *zap.Logger) (Report, error) {
	start := time.Now()
	log = log.Named("recovery")
	var report Report

	// Step 1: stored next_post_id.
	storedNext := uint64(0)
	if data, found, err := kv.Get([]byte(keys.NextPostID)); err != nil {
		return report, err
	} else if found {
		if n, ok := parseUint(data); ok {
			storedNext = n
		}
	}

	// Step 2: postid:* -> postIdByUri, tracking max_id.
	maxID := uint64(0)
	postIDByURI := make(map[string]uint64)
	if err := walk(kv, keys.PostIDPrefix, func(key, value []byte) error {
		uri := keys.TrimPostID(string(key))
		id, err := registry.DecodePostIDValue(value)
		if err != nil {
			report.MalformedRows++
			return w.Delete(key)
		}
		postIDByURI[uri] = id
		if id > maxID {
			maxID = id
		}
		report.PostIDRows++
		return nil
	}); err != nil {
		return report, err
	}

	// Step 3: posturi:* -> uriByPostId (+ optional url), accepting legacy
	// plain-string values.
	type uriRow struct {
		uri    string
		url    string
		hasURL bool
	}
	uriByID := make(map[uint64]uriRow)
	if err := walk(kv, keys.PostURIPrefix, func(key, value []byte) error {
		id, ok := keys.TrimPostURI(string(key))
		if !ok {
			report.MalformedRows++
			return w.Delete(key)
		}
		uri, url, hasURL, err := registry.DecodePostURIValue(value)
		if err != nil {
			report.MalformedRows++
			return w.Delete(key)
		}
		uriByID[id] = uriRow{uri: uri, url: url, hasURL: hasURL}
		report.PostURIRows++
		return nil
	}); err != nil {
		return report, err
	}

	// Step 4: posturl:* -> in-memory URL cache.
	urlByID := make(map[uint64]string)
	hasURLByID := make(map[uint64]bool)
	if err := walk(kv, keys.PostURLPrefix, func(key, value []byte) error {
		id, ok := keys.TrimPostURL(string(key))
		if !ok {
			report.MalformedRows++
			return w.Delete(key)
		}
		url, hasURL, err := registry.DecodePostURLValue(value)
		if err != nil {
			report.MalformedRows++
			return w.Delete(key)
		}
		urlByID[id] = url
		hasURLByID[id] = hasURL
		report.PostURLRows++
		return nil
	}); err != nil {
		return report, err
	}

	// Install the uri<->id mapping now that all three prefixes are read.
	for uri, id := range postIDByURI {
		url, hasURL := "", false
		if row, ok := uriByID[id]; ok {
			url, hasURL = row.url, row.hasURL
		}
		if u, ok := urlByID[id]; ok && hasURLByID[id] {
			url, hasURL = u, true
		}
		reg.RestoreMapping(uri, id, url, hasURL)
	}
	for id, row := range uriByID {
		if _, ok := postIDByURI[row.uri]; ok {
			continue
		}
		reg.RestoreMapping(row.uri, id, row.url, row.hasURL)
	}

	// Step 5: next_post_id = max(stored_next, max_id+1, 1); persist.
	reg.SetNextID(storedNext)
	reg.SetNextID(maxID + 1)
	reg.SetNextID(1)
	if err := w.Put([]byte(keys.NextPostID), encodeUint(reg.NextID())); err != nil {
		return report, err
	}

	// Step 6: post:* -> tally table.
	staleRemoved := 0
	if err := walk(kv, keys.PostPrefix, func(key, value []byte) error {
		uri := keys.TrimPost(string(key))
		s, err := tally.Decode(value)
		if err != nil {
			report.MalformedRows++
			return w.Delete(key)
		}
		if s.Closed() {
			return w.Delete(key)
		}
		if nowMS-s.LastUpdated > retentionWindowMS {
			staleRemoved++
			return w.Delete(key)
		}

		id, ok := reg.LookupID(uri)
		switch {
		case ok && s.ID == 0:
			s.ID = id
		case !ok && s.ID != 0:
			if existingURI, ok2 := reg.LookupURI(s.ID); !ok2 || existingURI != uri {
				reg.RestoreMapping(uri, s.ID, "", false)
			}
		case !ok && s.ID == 0:
			newID, err := reg.Allocate(uri, w)
			if err != nil {
				return err
			}
			s.ID = newID
		}

		t.Set(uri, s)
		report.TallyRows++

		canonical, err := tally.Encode(s)
		if err != nil {
			return nil
		}
		if string(canonical) != string(value) {
			return w.Put(key, canonical)
		}
		return nil
	}); err != nil {
		return report, err
	}
	report.StaleRemoved = staleRemoved

	// Step 7: like:* -> active-likes cache.
	if err := walkRefs(kv, w, keys.LikePrefix, keys.TrimLike, postIDByURI, t, likes, &report.LikeRows, &report.MalformedRows); err != nil {
		return report, err
	}
	// Step 8: repost:* -> active-reposts cache.
	if err := walkRefs(kv, w, keys.RepostPrefix, keys.TrimRepost, postIDByURI, t, reposts, &report.RepostRows, &report.MalformedRows); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	log.Info("recovery complete",
		zap.Int("postIdRows", report.PostIDRows),
		zap.Int("postUriRows", report.PostURIRows),
		zap.Int("postUrlRows", report.PostURLRows),
		zap.Int("tallyRows", report.TallyRows),
		zap.Int("staleRemoved", report.StaleRemoved),
		zap.Int("likeRows", report.LikeRows),
		zap.Int("repostRows", report.RepostRows),
		zap.Int("malformedRows", report.MalformedRows),
		zap.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

// walkRefs implements the shared shape of steps 7 and 8: resolve each
// like:/repost: value (post id, new; URI, legacy) to a post id via
// postIdByUri, rewriting legacy rows, and populate the matching active
// cache if the post survived into the tally.
func walkRefs(kv Reader, w store.Writer, prefixRange func() ([]byte, []byte), trim func(string) string, postIDByURI map[string]uint64, t *tally.Table, cache *activeref.Cache, count *int, malformed *int) error {
	return walk(kv, prefixRange, func(key, value []byte) error {
		ref := trim(string(key))

		id, legacy, ok := resolveRefValue(value, postIDByURI)
		if !ok {
			*malformed++
			return w.Delete(key)
		}

		found := false
		t.Range(func(_ string, s *tally.Stats) bool {
			if s.ID == id {
				found = true
				return false
			}
			return true
		})
		if !found {
			return w.Delete(key)
		}

		cache.Set(ref, id)
		*count++

		if legacy {
			return w.Put(key, encodeUint(id))
		}
		return nil
	})
}

// resolveRefValue parses a like:/repost: row value, which is either a
// numeric post id (current format) or a legacy URI string resolved
// through postIdByUri.
func resolveRefValue(value []byte, postIDByURI map[string]uint64) (id uint64, legacy bool, ok bool) {
	if n, numeric := parseUint(value); numeric {
		return n, false, true
	}
	uri, uriOK, err := unquoteJSONString(value)
	if err != nil || !uriOK {
		return 0, false, false
	}
	id, found := postIDByURI[uri]
	if !found {
		return 0, false, false
	}
	return id, true, true
}

func walk(kv Reader, prefixRange func() ([]byte, []byte), fn func(key, value []byte) error) error {
	gte, lt := prefixRange()
	it, err := kv.NewIter(gte, lt)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return nil
}
