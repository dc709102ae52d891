package lifecycle

import (
	"sync/atomic"
	"time"
)

// drainingSince holds the time shutdown began; nil while serving.
var drainingSince atomic.Pointer[time.Time]

// SetShuttingDown flips the process into draining on SIGTERM/SIGINT. /health reports
// shutting-down with 503 until the flag is cleared.
func SetShuttingDown(v bool) {
	if !v {
		drainingSince.Store(nil)
		return
	}
	now := time.Now()
	drainingSince.CompareAndSwap(nil, &now)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return drainingSince.Load() != nil
}

// DrainDuration returns how long the process has been draining, or 0 while serving.
func DrainDuration() time.Duration {
	since := drainingSince.Load()
	if since == nil {
		return 0
	}
	return time.Since(*since)
}
