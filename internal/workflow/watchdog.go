package workflow

import (
	"time"
)

// Stall describes a worker whose heartbeat went stale.
type Stall struct {
	Worker int
	Idle   time.Duration
}

// StallWatchdog finds wedged workers in a HeartbeatRegistry.
type StallWatchdog struct {
	registry  *HeartbeatRegistry
	threshold time.Duration
}

// NewStallWatchdog returns a watchdog over registry.
func NewStallWatchdog(registry *HeartbeatRegistry, threshold time.Duration) *StallWatchdog {
	return &StallWatchdog{registry: registry, threshold: threshold}
}

// Active reports whether the watchdog applies. A single-worker pool has no
// peer to compare against and may run arbitrarily long.
func (w *StallWatchdog) Active() bool {
	return len(w.registry.ids) > 1
}

// Check returns the first worker, by id, idle longer than the threshold at
// now. Retired workers are skipped.
func (w *StallWatchdog) Check(now time.Time) (Stall, bool) {
	if !w.Active() {
		return Stall{}, false
	}
	for _, hb := range w.registry.Snapshot() {
		if hb.Retired {
			continue
		}
		if idle := now.Sub(hb.Last); idle > w.threshold {
			return Stall{Worker: hb.Worker, Idle: idle}, true
		}
	}
	return Stall{}, false
}
