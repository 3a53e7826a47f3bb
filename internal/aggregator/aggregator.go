// Package aggregator wires the store, registry, active-reference caches,
// tally table, ingestor, ranker, reporter, snapshotter, pruner, and
// recovery into one explicit-lifetime container (§9: "global mutable
// state → explicit container"). main constructs it; Shutdown drops it.
package aggregator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/activeref"
	"github.com/kozko2001/bsky-aggregator/internal/ingest"
	"github.com/kozko2001/bsky-aggregator/internal/prune"
	"github.com/kozko2001/bsky-aggregator/internal/rank"
	"github.com/kozko2001/bsky-aggregator/internal/recovery"
	"github.com/kozko2001/bsky-aggregator/internal/registry"
	"github.com/kozko2001/bsky-aggregator/internal/report"
	"github.com/kozko2001/bsky-aggregator/internal/snapshot"
	"github.com/kozko2001/bsky-aggregator/internal/store"
	"github.com/kozko2001/bsky-aggregator/internal/tally"
	pkgerrors "github.com/kozko2001/bsky-aggregator/pkg/errors"
)

// Batch write-size thresholds (§4.9).
const (
	steadyStateBatchThreshold = 1000
	recoveryBatchThreshold    = 5000
	pruneBatchThreshold       = 2000

	deferredCompactionAfterPrune    = 3 * time.Minute
	deferredCompactionAfterRecovery = 30 * time.Second
)

// Config carries the tunables listed in §6.
type Config struct {
	Endpoint            string
	ReportInterval      time.Duration
	TopN                int
	MaxTrackedPosts     int
	RetentionWindow     time.Duration
	HalfLifeHours       float64
	SnapshotInterval    time.Duration
	SnapshotDir         string
	MaxActiveLikes      int
	MaxActiveReposts    int
}

// Aggregator is the explicit container for every piece of mutable state
// the TypeScript original kept at module scope.
type Aggregator struct {
	cfg Config
	log *zap.Logger

	kv      store.KV
	batcher *store.Batcher

	registry *registry.Registry
	tally    *tally.Table
	likes    *activeref.Cache
	reposts  *activeref.Cache

	reporter   *report.Reporter
	snapshotter *snapshot.Writer
	ingestor   *ingest.Ingestor

	// stateMu serializes every access to registry/tally/likes/reposts/
	// batcher: the ingest handlers, the reporter/pruner/snapshot timers,
	// Recover, and Shutdown all hold it for the duration of their work.
	// This is the concurrency-era stand-in for §5's single-threaded
	// cooperative scheduling — none of those callers run truly in
	// parallel, they just take turns under the lock instead of at await
	// boundaries.
	stateMu sync.Mutex

	mu           sync.Mutex
	shuttingDown bool
	compactPending bool

	cancelTimers context.CancelFunc
	timersWG     sync.WaitGroup
}

// New constructs an Aggregator over an already-open KV store. Recovery
// must be run (via Recover) before Run.
func New(cfg Config, kv store.KV, log *zap.Logger) *Aggregator {
	likes, _ := activeref.New(cfg.MaxActiveLikes)
	reposts, _ := activeref.New(cfg.MaxActiveReposts)

	a := &Aggregator{
		cfg:         cfg,
		log:         log,
		kv:          kv,
		batcher:     store.NewBatcher(kv),
		registry:    registry.New(),
		tally:       tally.NewTable(),
		likes:       likes,
		reposts:     reposts,
		reporter:    report.New(log),
		snapshotter: snapshot.New(cfg.SnapshotDir, log),
	}
	a.ingestor = ingest.New(cfg.Endpoint, a, log)
	return a
}

// Recover replays the KV store before the ingestor connects (§4.10), then
// emits the "initial" startup snapshot.
func (a *Aggregator) Recover(ctx context.Context) error {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	scope := a.batcher.BeginScope(recoveryBatchThreshold)
	rep, err := recovery.Run(a.kv, scope, a.registry, a.tally, a.likes, a.reposts,
		a.cfg.RetentionWindow.Milliseconds(), nowMS(), a.log)
	if endErr := scope.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.RecoveryError, "recovery failed")
	}
	if rep.StaleRemovedAny() {
		a.scheduleCompaction(deferredCompactionAfterRecovery)
	}

	entries := rank.TopN(a.tally, a.cfg.TopN, nowMS(), a.cfg.HalfLifeHours)
	if err := a.snapshotter.Write(ctx, snapshot.ReasonInitial, entries, a.cfg.RetentionWindow.Hours(), a.cfg.HalfLifeHours, a.resolveURL); err != nil {
		a.log.Warn("initial snapshot failed", zap.Error(err))
	}
	return nil
}

// Run starts the ingestor and blocks until ctx is cancelled or Shutdown
// is called. Timers (reporter, pruner, snapshotter) are started lazily
// from OnConnected, matching §4.1 ("starts timers ... if not already
// running").
func (a *Aggregator) Run(ctx context.Context) {
	a.ingestor.Run(ctx)
}

// Shutdown implements §4.11: idempotent, stops reconnects and timers,
// drains the snapshot queue, emits a final report/prune/snapshot, and
// closes the KV store.
func (a *Aggregator) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.shuttingDown {
		a.mu.Unlock()
		return nil
	}
	a.shuttingDown = true
	a.mu.Unlock()

	a.ingestor.Shutdown()
	if a.cancelTimers != nil {
		a.cancelTimers()
	}
	a.timersWG.Wait()

	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	a.log.Info(a.reportLineLocked())

	scope := a.batcher.BeginScope(pruneBatchThreshold)
	if _, err := prune.Run(a.tally, a.likes, a.reposts, a.kv, scope,
		a.cfg.MaxTrackedPosts, a.cfg.RetentionWindow.Milliseconds(), nowMS(), a.log); err != nil {
		a.log.Warn("final prune failed", zap.Error(err))
	}
	if err := scope.End(); err != nil {
		a.log.Warn("final prune flush failed", zap.Error(err))
	}

	entries := rank.TopN(a.tally, a.cfg.TopN, nowMS(), a.cfg.HalfLifeHours)
	if err := a.snapshotter.Write(ctx, snapshot.ReasonFinal, entries, a.cfg.RetentionWindow.Hours(), a.cfg.HalfLifeHours, a.resolveURL); err != nil {
		a.log.Warn("final snapshot failed", zap.Error(err))
	}

	if err := a.kv.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.KVCloseFailed, "closing kv store")
	}
	return nil
}

// resolveURL reads the registry's display-URL cache. Every caller must
// already hold stateMu.
func (a *Aggregator) resolveURL(id uint64) (string, bool) {
	return a.registry.LookupURL(id)
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

// reportLineLocked formats the periodic resource+leaderboard line.
// Callers must hold stateMu.
func (a *Aggregator) reportLineLocked() string {
	sample := report.TakeSample(report.CurrentCPUTime())
	cpuPct := a.reporter.CPUPercent(sample)
	entries := rank.TopN(a.tally, a.cfg.TopN, nowMS(), a.cfg.HalfLifeHours)
	return report.Line(sample, cpuPct, a.likes.Len(), a.reposts.Len(), entries, a.resolveURL)
}

// scheduleCompaction coalesces overlapping compaction requests: a
// pending or in-flight compaction absorbs the new request instead of
// queuing a second one (§4.6 step 4, §4.10 step 9).
func (a *Aggregator) scheduleCompaction(after time.Duration) {
	a.mu.Lock()
	if a.compactPending {
		a.mu.Unlock()
		return
	}
	a.compactPending = true
	a.mu.Unlock()

	go func() {
		time.Sleep(after)
		if err := a.kv.CompactRange(nil, nil); err != nil {
			a.log.Warn("compaction failed", zap.Error(err))
		}
		a.mu.Lock()
		a.compactPending = false
		a.mu.Unlock()
	}()
}
