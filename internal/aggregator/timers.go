package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/prune"
	"github.com/kozko2001/bsky-aggregator/internal/rank"
	"github.com/kozko2001/bsky-aggregator/internal/snapshot"
)

// startTimersOnce starts the reporter, pruner, and snapshot timers on
// first connect only (§4.1: "if not already running").
func (a *Aggregator) startTimersOnce(ctx context.Context) {
	a.mu.Lock()
	if a.cancelTimers != nil {
		a.mu.Unlock()
		return
	}
	timerCtx, cancel := context.WithCancel(ctx)
	a.cancelTimers = cancel
	a.mu.Unlock()

	a.timersWG.Add(3)
	go a.runReporterTimer(timerCtx)
	go a.runPrunerTimer(timerCtx)
	go a.runSnapshotTimer(timerCtx)
}

func (a *Aggregator) runReporterTimer(ctx context.Context) {
	defer a.timersWG.Done()
	ticker := time.NewTicker(a.cfg.ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stateMu.Lock()
			line := a.reportLineLocked()
			a.stateMu.Unlock()
			a.log.Info(line)
		}
	}
}

func (a *Aggregator) runPrunerTimer(ctx context.Context) {
	defer a.timersWG.Done()
	interval := prunerInterval(a.cfg.ReportInterval, a.cfg.RetentionWindow)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runPruneOnce()
		}
	}
}

func (a *Aggregator) runSnapshotTimer(ctx context.Context) {
	defer a.timersWG.Done()
	ticker := time.NewTicker(a.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.stateMu.Lock()
			entries := rank.TopN(a.tally, a.cfg.TopN, nowMS(), a.cfg.HalfLifeHours)
			err := a.snapshotter.Write(ctx, snapshot.ReasonInterval, entries, a.cfg.RetentionWindow.Hours(), a.cfg.HalfLifeHours, a.resolveURL)
			a.stateMu.Unlock()
			if err != nil {
				a.log.Warn("periodic snapshot failed", zap.Error(err))
			}
		}
	}
}

// prunerInterval implements §4.6: clamp(15s, 5*report_interval, retention_window).
func prunerInterval(reportInterval, retentionWindow time.Duration) time.Duration {
	interval := 5 * reportInterval
	if interval < 15*time.Second {
		interval = 15 * time.Second
	}
	if interval > retentionWindow {
		interval = retentionWindow
	}
	return interval
}

func (a *Aggregator) runPruneOnce() {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	scope := a.batcher.BeginScope(pruneBatchThreshold)
	result, err := prune.Run(a.tally, a.likes, a.reposts, a.kv, scope,
		a.cfg.MaxTrackedPosts, a.cfg.RetentionWindow.Milliseconds(), nowMS(), a.log)
	if endErr := scope.End(); err == nil {
		err = endErr
	}
	if err != nil {
		a.log.Warn("prune failed", zap.Error(err))
		return
	}
	if result.Removed() {
		a.scheduleCompaction(deferredCompactionAfterPrune)
	}
}
