// Package report formats the periodic resource + leaderboard log line
// (§4.7).
package report

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozko2001/bsky-aggregator/internal/rank"
)

// Sample is one point-in-time resource reading, taken from
// runtime.MemStats plus accumulated CPU time.
type Sample struct {
	HeapAllocBytes uint64
	SysBytes       uint64
	CPUTime        time.Duration
	At             time.Time
}

// Reporter remembers the previous CPU sample to derive a CPU% delta
// between ticks. It does not log; the leaderboard line is built by Line.
type Reporter struct {
	log      *zap.Logger
	lastCPU  time.Duration
	lastWall time.Time
}

// New builds a Reporter.
func New(log *zap.Logger) *Reporter {
	return &Reporter{log: log.Named("reporter")}
}

// TakeSample reads current process resource usage. cpuTime is the
// accumulated user+system CPU time, supplied by the caller since
// obtaining it is platform-specific (see CurrentCPUTime).
func TakeSample(cpuTime time.Duration) Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return Sample{
		HeapAllocBytes: ms.HeapAlloc,
		SysBytes:       ms.Sys,
		CPUTime:        cpuTime,
		At:             time.Now(),
	}
}

// CPUPercent computes the CPU% delta since the previous sample: the
// fraction of wall-clock time between samples spent in accumulated CPU
// time. The first call after construction has no baseline and reports 0.
func (r *Reporter) CPUPercent(s Sample) float64 {
	defer func() {
		r.lastCPU = s.CPUTime
		r.lastWall = s.At
	}()
	if r.lastWall.IsZero() {
		return 0
	}
	wall := s.At.Sub(r.lastWall)
	if wall <= 0 {
		return 0
	}
	cpuDelta := s.CPUTime - r.lastCPU
	return 100 * cpuDelta.Seconds() / wall.Seconds()
}

// Line formats the leaderboard + resource report emitted each tick.
// Entries empty prints "No data yet" (§4.7).
func Line(s Sample, cpuPercent float64, activeLikes, activeReposts int, entries []rank.Entry, resolveURL func(id uint64) (string, bool)) string {
	var b strings.Builder
	fmt.Fprintf(&b, "heap=%s sys=%s cpu=%.1f%% activeLikes=%d activeReposts=%d\n",
		humanBytes(s.HeapAllocBytes), humanBytes(s.SysBytes), cpuPercent, activeLikes, activeReposts)

	if len(entries) == 0 {
		b.WriteString("No data yet")
		return b.String()
	}

	for i, e := range entries {
		url, ok := resolveURL(e.ID)
		if !ok {
			url = "-"
		}
		fmt.Fprintf(&b, "%d. %s (%s) — %d likes, %d reposts, score %d, hotness %.2f, updated %s",
			i+1, url, e.URI, e.Likes, e.Reposts, e.Score, e.Hotness, time.UnixMilli(e.LastUpdated).UTC().Format(time.RFC3339))
		if i < len(entries)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func humanBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
