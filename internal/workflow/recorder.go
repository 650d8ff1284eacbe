package workflow

import (
	"time"

	"whisx/internal/queue"
)

// Recorder receives scheduler measurements. Calls arrive from the control
// loop, except TaskRetried which is called from worker goroutines.
type Recorder interface {
	GenerationStarted(generation, files, workers int)
	TaskCompleted(event queue.Completion)
	TaskRetried(gpu int)
	HeartbeatObserved(gpu int, idle time.Duration, retired bool)
	PoolRestarted(gpu int)
}

type nopRecorder struct{}

func (nopRecorder) GenerationStarted(int, int, int)            {}
func (nopRecorder) TaskCompleted(queue.Completion)             {}
func (nopRecorder) TaskRetried(int)                            {}
func (nopRecorder) HeartbeatObserved(int, time.Duration, bool) {}
func (nopRecorder) PoolRestarted(int)                          {}
