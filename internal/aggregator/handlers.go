package aggregator

import (
	"context"
	"encoding/json"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/activeref"
	"github.com/kozko2001/bsky-aggregator/internal/ingest"
	"github.com/kozko2001/bsky-aggregator/internal/keys"
	"github.com/kozko2001/bsky-aggregator/internal/rank"
	"github.com/kozko2001/bsky-aggregator/internal/snapshot"
	"github.com/kozko2001/bsky-aggregator/internal/tally"
)

// HandleLike implements ingest.Handler for the app.bsky.feed.like
// collection (§4.2). The ingestor's read loop is the only caller, but
// it runs concurrently with the reporter/pruner/snapshot timers, so
// stateMu still serializes this against them (§5).
func (a *Aggregator) HandleLike(ctx context.Context, ref string, op ingest.Operation, subjectURI string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handleRecord(ctx, a.likes, keys.Like, ref, op, subjectURI, (*tally.Stats).AdjustLikes)
}

// HandleRepost implements ingest.Handler for the app.bsky.feed.repost
// collection (§4.2).
func (a *Aggregator) HandleRepost(ctx context.Context, ref string, op ingest.Operation, subjectURI string) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handleRecord(ctx, a.reposts, keys.Repost, ref, op, subjectURI, (*tally.Stats).AdjustReposts)
}

// OnConnected implements ingest.Handler: starts the background timers on
// first connect and enqueues a "connected" snapshot (§4.1).
func (a *Aggregator) OnConnected(ctx context.Context) {
	a.startTimersOnce(ctx)

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	entries := rank.TopN(a.tally, a.cfg.TopN, nowMS(), a.cfg.HalfLifeHours)
	if err := a.snapshotter.Write(ctx, snapshot.ReasonConnected, entries, a.cfg.RetentionWindow.Hours(), a.cfg.HalfLifeHours, a.resolveURL); err != nil {
		a.log.Warn("connected snapshot failed", zap.Error(err))
	}
}

// handleRecord implements the delete/create/update dispatch shared by
// like and repost handlers (§4.2). adjust is (*tally.Stats).AdjustLikes
// or (*tally.Stats).AdjustReposts.
func (a *Aggregator) handleRecord(ctx context.Context, cache *activeref.Cache, keyFor func(string) []byte, ref string, op ingest.Operation, subjectURI string, adjust func(*tally.Stats, int64, int64)) error {
	switch op {
	case ingest.OpDelete:
		return a.handleDelete(cache, keyFor, ref, adjust)
	case ingest.OpCreate:
		return a.handleCreate(cache, keyFor, ref, subjectURI, adjust)
	default:
		return nil
	}
}

func (a *Aggregator) handleDelete(cache *activeref.Cache, keyFor func(string) []byte, ref string, adjust func(*tally.Stats, int64, int64)) error {
	id, ok := cache.Get(ref)
	if !ok {
		data, found, err := a.kv.Get(keyFor(ref))
		if err != nil {
			return err
		}
		if !found {
			return nil // unresolved: silent drop (§4.2)
		}
		id, ok = decodeRefValue(data, a.registry)
		if !ok {
			return nil
		}
	}

	uri, ok := a.registry.LookupURI(id)
	if ok {
		if s, ok := a.tally.Get(uri); ok {
			adjust(s, -1, nowMS())
			if err := a.persistOrClose(uri, id, s); err != nil {
				return err
			}
		}
	}

	cache.Remove(ref)
	return a.batcher.Delete(keyFor(ref))
}

func (a *Aggregator) handleCreate(cache *activeref.Cache, keyFor func(string) []byte, ref string, subjectURI string, adjust func(*tally.Stats, int64, int64)) error {
	if subjectURI == "" {
		return nil // missing record.subject.uri: drop (§4.2)
	}

	id, ok := a.registry.LookupID(subjectURI)
	if !ok {
		var err error
		id, err = a.registry.Allocate(subjectURI, a.batcher)
		if err != nil {
			return err
		}
	}

	s, ok := a.tally.Get(subjectURI)
	if !ok {
		s = &tally.Stats{ID: id}
		a.tally.Set(subjectURI, s)
	}
	adjust(s, 1, nowMS())

	cache.Set(ref, id)

	if err := a.persistOrClose(subjectURI, id, s); err != nil {
		return err
	}
	return a.batcher.Put(keyFor(ref), encodeRefValue(id))
}

// persistOrClose writes the updated post: row, or deletes the row (and
// its id mapping) if both counters have returned to zero (§4.2).
func (a *Aggregator) persistOrClose(uri string, id uint64, s *tally.Stats) error {
	if s.Closed() {
		a.tally.Delete(uri)
		if err := a.registry.Remove(id, a.batcher); err != nil {
			return err
		}
		return a.batcher.Delete(keys.Post(uri))
	}
	data, err := tally.Encode(s)
	if err != nil {
		return err
	}
	return a.batcher.Put(keys.Post(uri), data)
}

func decodeRefValue(data []byte, reg interface {
	LookupID(uri string) (uint64, bool)
}) (uint64, bool) {
	if n, err := strconv.ParseUint(string(data), 10, 64); err == nil {
		return n, true
	}
	var uri string
	if err := json.Unmarshal(data, &uri); err == nil {
		if id, ok := reg.LookupID(uri); ok {
			return id, true
		}
	}
	return 0, false
}

func encodeRefValue(id uint64) []byte {
	return []byte(strconv.FormatUint(id, 10))
}
