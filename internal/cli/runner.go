// Package cli builds the aggregator's cobra root command: every flag
// from §6, each defaulting to the value config.LoadConfig() already
// resolved from the environment, so an explicit flag is the only thing
// that overrides it.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozko2001/bsky-aggregator/internal/config"
	pkgerrors "github.com/kozko2001/bsky-aggregator/pkg/errors"
)

// Runner owns the cobra root command and the config it populates.
type Runner struct {
	cfg     *config.Config
	rootCmd *cobra.Command
	run     func(ctx context.Context, cfg *config.Config) error
}

// NewRunner builds a Runner whose Run invokes run once flags have
// been parsed into cfg.
func NewRunner(cfg *config.Config, run func(ctx context.Context, cfg *config.Config) error) *Runner {
	r := &Runner{cfg: cfg, run: run}

	r.rootCmd = &cobra.Command{
		Use:   "bsky-aggregator",
		Short: "Real-time like/repost aggregator for the Bluesky firehose",
		Long: `bsky-aggregator subscribes to the Jetstream event firehose, tallies
likes and reposts per post, ranks posts by decayed hotness, and persists
state to an embedded key-value store with periodic JSON snapshots.`,
		SilenceUsage: true,
		// Do NOT silence errors - they should be printed to stderr
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(cmd.Context(), r.cfg)
		},
	}
	r.rootCmd.Version = "0.1.0"
	r.rootCmd.SetVersionTemplate("bsky-aggregator version {{.Version}}\n")

	flags := r.rootCmd.Flags()
	flags.Int64Var(&cfg.ReportIntervalMS, "interval-ms", cfg.ReportIntervalMS, "reporter period in milliseconds")
	flags.IntVar(&cfg.TopN, "top", cfg.TopN, "leaderboard size")
	flags.IntVar(&cfg.MaxTrackedPosts, "max-posts", cfg.MaxTrackedPosts, "tally hard cap")
	flags.Float64Var(&cfg.WindowHours, "window-hours", cfg.WindowHours, "retention window in hours")
	flags.Float64Var(&cfg.HalfLifeHours, "half-life-hours", cfg.HalfLifeHours, "decay half-life for hotness, in hours")
	flags.Int64Var(&cfg.SnapshotInterval, "snapshot-interval-ms", cfg.SnapshotInterval, "snapshotter period in milliseconds")
	flags.StringVar(&cfg.SnapshotDir, "snapshot-dir", cfg.SnapshotDir, "directory for JSON snapshot files (env SNAPSHOT_DIR)")
	flags.StringVar(&cfg.StateDir, "state", cfg.StateDir, "KV store location (env STATE_FILE)")
	flags.Int64Var(&cfg.StaleMS, "stale-ms", cfg.StaleMS, "override the retention window directly, in milliseconds")
	flags.IntVar(&cfg.MaxActiveLikes, "max-active-likes", cfg.MaxActiveLikes, "active-likes LRU capacity")
	flags.IntVar(&cfg.MaxActiveReposts, "max-active-reposts", cfg.MaxActiveReposts, "active-reposts LRU capacity")

	return r
}

// Run executes the CLI.
func (r *Runner) Run(ctx context.Context, args []string) error {
	r.rootCmd.SetArgs(args)
	r.rootCmd.SetContext(ctx)
	return r.rootCmd.Execute()
}

// HandleError maps a pkg/errors.AggregatorError to the process exit code
// (§6: "Exit codes. 0 on clean shutdown; non-zero on fatal init error").
// Transient errors never reach here — they are logged and swallowed at
// the point they occur.
func HandleError(err error) {
	if err == nil {
		return
	}
	if aggErr, ok := err.(*pkgerrors.AggregatorError); ok {
		fmt.Fprintf(os.Stderr, "Error: %v\n", aggErr.Message)
		if pkgerrors.IsFatal(aggErr.Code) {
			os.Exit(1)
		}
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
