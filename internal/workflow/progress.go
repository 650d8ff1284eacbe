package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"whisx/internal/logging"
	"whisx/internal/queue"
)

// Summary is the tally of one generation.
type Summary struct {
	Total          int
	Done           int
	Succeeded      int
	Skipped        int
	Failed         int
	ProcessingTime time.Duration
	Elapsed        time.Duration
	FailedPaths    []string
}

// Remaining returns how many items have not reached a terminal outcome.
func (s Summary) Remaining() int {
	return s.Total - s.Done
}

// Progress is the state after one observed event.
type Progress struct {
	Done    int
	Total   int
	Percent float64
	Average time.Duration
	ETA     time.Time
}

// Line renders the console progress line for path.
func (p Progress) Line(path string) string {
	return fmt.Sprintf("[%d/%d - %.1f%%] Done: %s | Estimated finish: %s",
		p.Done, p.Total, p.Percent, path, logging.FormatTimestamp(p.ETA))
}

// ProgressMonitor counts completion events and estimates the finish time from
// the wall-clock time elapsed since the generation started.
type ProgressMonitor struct {
	total   int
	start   time.Time
	now     func() time.Time
	logger  *slog.Logger
	summary Summary
}

// NewProgressMonitor returns a monitor expecting total events. now may be nil.
func NewProgressMonitor(total int, start time.Time, now func() time.Time, logger *slog.Logger) *ProgressMonitor {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ProgressMonitor{
		total:   total,
		start:   start,
		now:     now,
		logger:  logger,
		summary: Summary{Total: total},
	}
}

// Observe folds one completion event into the totals and logs the progress line.
func (m *ProgressMonitor) Observe(event queue.Completion) Progress {
	m.summary.Done++
	switch {
	case event.Status == queue.StatusSuccess && event.Skipped:
		m.summary.Succeeded++
		m.summary.Skipped++
	case event.Status == queue.StatusSuccess:
		m.summary.Succeeded++
		m.summary.ProcessingTime += event.ProcessingTime
	default:
		m.summary.Failed++
		m.summary.FailedPaths = append(m.summary.FailedPaths, event.Path)
	}

	now := m.now()
	elapsed := now.Sub(m.start)

	done := m.summary.Done
	avg := elapsed / time.Duration(done)
	remaining := m.total - done
	if remaining < 0 {
		remaining = 0
	}
	progress := Progress{
		Done:    done,
		Total:   m.total,
		Average: avg,
		ETA:     now.Add(avg * time.Duration(remaining)),
	}
	if m.total > 0 {
		progress.Percent = float64(done) / float64(m.total) * 100
	}

	m.logger.Info(progress.Line(event.Path),
		logging.String(logging.FieldEventType, "task_done"),
		logging.String("status", string(event.Status)),
	)
	return progress
}

// Complete reports whether every expected event has arrived.
func (m *ProgressMonitor) Complete() bool {
	return m.summary.Done >= m.total
}

// Done returns the number of observed events.
func (m *ProgressMonitor) Done() int {
	return m.summary.Done
}

// Summary returns a copy of the running totals.
func (m *ProgressMonitor) Summary() Summary {
	s := m.summary
	s.FailedPaths = append([]string(nil), m.summary.FailedPaths...)
	s.Elapsed = m.now().Sub(m.start)
	return s
}
