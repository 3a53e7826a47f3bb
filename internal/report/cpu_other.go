//go:build !unix

package report

import "time"

// CurrentCPUTime is unavailable on this platform; CPUPercent reports 0.
func CurrentCPUTime() time.Duration {
	return 0
}
