package workflow

import (
	"time"
)

// WorkerHealth is a diagnostic view of one worker, logged on teardown.
type WorkerHealth struct {
	Worker  int
	State   WorkerState
	Last    time.Time
	Idle    time.Duration
	Retired bool
}

// Stuck reports whether the worker is still live after teardown was requested.
func (h WorkerHealth) Stuck() bool {
	return h.State != StateTerminated
}

func collectHealth(workers []*Worker, registry *HeartbeatRegistry, now time.Time) []WorkerHealth {
	beats := make(map[int]Heartbeat, len(workers))
	for _, hb := range registry.Snapshot() {
		beats[hb.Worker] = hb
	}
	out := make([]WorkerHealth, 0, len(workers))
	for _, w := range workers {
		hb := beats[w.ID()]
		out = append(out, WorkerHealth{
			Worker:  w.ID(),
			State:   w.State(),
			Last:    hb.Last,
			Idle:    now.Sub(hb.Last),
			Retired: hb.Retired,
		})
	}
	return out
}

func allRetired(registry *HeartbeatRegistry) bool {
	for _, hb := range registry.Snapshot() {
		if !hb.Retired {
			return false
		}
	}
	return true
}
