// bsky-aggregator - real-time like/repost aggregator for the Bluesky
// firehose. Main entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/aggregator"
	"github.com/kozko2001/bsky-aggregator/internal/cli"
	"github.com/kozko2001/bsky-aggregator/internal/config"
	"github.com/kozko2001/bsky-aggregator/internal/store"
	pkgerrors "github.com/kozko2001/bsky-aggregator/pkg/errors"
)

func main() {
	cfg := config.LoadConfig()

	runner := cli.NewRunner(cfg, run)
	if err := runner.Run(context.Background(), os.Args[1:]); err != nil {
		cli.HandleError(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := zap.NewProduction()
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.InternalError, "building logger")
	}
	defer log.Sync()

	kv, err := store.Open(cfg.StateDir)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.KVOpenFailed, "opening kv store at "+cfg.StateDir)
	}

	agg := aggregator.New(aggregator.Config{
		Endpoint:         cfg.Endpoint,
		ReportInterval:   intervalDuration(cfg.ReportIntervalMS),
		TopN:             cfg.TopN,
		MaxTrackedPosts:  cfg.MaxTrackedPosts,
		RetentionWindow:  cfg.RetentionWindow(),
		HalfLifeHours:    cfg.HalfLifeHours,
		SnapshotInterval: intervalDuration(cfg.SnapshotInterval),
		SnapshotDir:      cfg.SnapshotDir,
		MaxActiveLikes:   cfg.MaxActiveLikes,
		MaxActiveReposts: cfg.MaxActiveReposts,
	}, kv, log)

	if err := agg.Recover(ctx); err != nil {
		log.Error("recovery failed", zap.Error(err))
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("received shutdown signal, shutting down")
		cancel()
	}()

	agg.Run(runCtx)

	shutdownCtx := context.Background()
	if err := agg.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
		return err
	}

	log.Info("bsky-aggregator stopped")
	return nil
}

func intervalDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
