package workflow

import (
	"strings"
	"testing"
	"time"

	"whisx/internal/logging"
	"whisx/internal/queue"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestProgressMonitorETA(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)
	clock := &fakeClock{now: start}
	m := NewProgressMonitor(4, start, clock.Now, nil)

	clock.Advance(10 * time.Second)
	p := m.Observe(queue.Completion{Path: "/a.wav", Status: queue.StatusSuccess, ProcessingTime: 9 * time.Second})
	if p.Done != 1 || p.Total != 4 || p.Percent != 25 {
		t.Fatalf("progress = %+v", p)
	}
	if p.Average != 10*time.Second {
		t.Fatalf("average = %v", p.Average)
	}
	if want := start.Add(40 * time.Second); !p.ETA.Equal(want) {
		t.Fatalf("ETA = %v, want %v", p.ETA, want)
	}

	clock.Advance(20 * time.Second)
	p = m.Observe(queue.Completion{Path: "/b.wav", Status: queue.StatusSuccess, Skipped: true})
	if p.Average != 15*time.Second {
		t.Fatalf("average = %v", p.Average)
	}
	if want := start.Add(60 * time.Second); !p.ETA.Equal(want) {
		t.Fatalf("ETA = %v, want %v", p.ETA, want)
	}

	wantLine := "[2/4 - 50.0%] Done: /b.wav | Estimated finish: " + logging.FormatTimestamp(start.Add(60*time.Second))
	if got := p.Line("/b.wav"); got != wantLine {
		t.Fatalf("line = %q, want %q", got, wantLine)
	}
	if m.Complete() {
		t.Fatal("monitor complete too early")
	}
}

func TestProgressMonitorSummary(t *testing.T) {
	start := time.Unix(0, 0)
	clock := &fakeClock{now: start}
	m := NewProgressMonitor(3, start, clock.Now, nil)
	clock.Advance(time.Second)
	m.Observe(queue.Completion{Path: "a", Status: queue.StatusSuccess, ProcessingTime: time.Second})
	m.Observe(queue.Completion{Path: "b", Status: queue.StatusSuccess, Skipped: true})
	m.Observe(queue.Completion{Path: "c", Status: queue.StatusPermanentFailure})
	clock.Advance(time.Second)

	if !m.Complete() {
		t.Fatal("expected completion")
	}
	s := m.Summary()
	if s.Done != 3 || s.Succeeded != 2 || s.Skipped != 1 || s.Failed != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.ProcessingTime != time.Second || s.Elapsed != 2*time.Second {
		t.Fatalf("times = %v / %v", s.ProcessingTime, s.Elapsed)
	}
	if len(s.FailedPaths) != 1 || s.FailedPaths[0] != "c" || s.Remaining() != 0 {
		t.Fatalf("failed paths = %v", s.FailedPaths)
	}
}

func TestProgressLineFormat(t *testing.T) {
	p := Progress{Done: 1, Total: 3, Percent: 100.0 / 3, ETA: time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)}
	line := p.Line("x.wav")
	if !strings.HasPrefix(line, "[1/3 - 33.3%] Done: x.wav | Estimated finish: 2025-01-02 03:04:05") {
		t.Fatalf("line = %q", line)
	}
}
