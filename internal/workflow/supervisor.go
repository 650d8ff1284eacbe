package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"whisx/internal/logging"
	"whisx/internal/queue"
	"whisx/internal/scan"
	"whisx/internal/services"
	"whisx/internal/services/whisperx"
)

var (
	// ErrWorkersExited means every worker terminated with work outstanding
	// and no watchdog was available to recover.
	ErrWorkersExited = errors.New("all workers exited with work outstanding")
	// ErrRestartLimit means the stall watchdog fired more often than allowed.
	ErrRestartLimit = errors.New("stall restart limit reached")
)

// RosterSource builds the pending work list for a generation.
type RosterSource interface {
	Roster(ctx context.Context, root string) (scan.Roster, error)
}

// Result describes a finished run.
type Result struct {
	Root        string
	RunID       string
	Generations []Summary
	Restarts    int
	// Marked is the number of files already carrying a marker at the first scan.
	Marked int
}

// Final returns the summary of the last generation.
func (r Result) Final() Summary {
	if len(r.Generations) == 0 {
		return Summary{}
	}
	return r.Generations[len(r.Generations)-1]
}

// Totals folds every generation into one summary. Failures from a generation
// that was torn down are not counted because the next scan retries them.
func (r Result) Totals() Summary {
	var out Summary
	for i, g := range r.Generations {
		out.Succeeded += g.Succeeded
		out.Skipped += g.Skipped
		out.ProcessingTime += g.ProcessingTime
		out.Elapsed += g.Elapsed
		if i == len(r.Generations)-1 {
			out.Failed = g.Failed
			out.FailedPaths = append([]string(nil), g.FailedPaths...)
		}
	}
	out.Done = out.Succeeded + out.Failed
	out.Total = out.Done
	return out
}

// RunNotifier is told when work starts and about every stall restart.
type RunNotifier interface {
	NotifyRunStarted(ctx context.Context, root string, files, gpus int) error
	NotifyPoolRestarted(ctx context.Context, gpu int, idle time.Duration, restarts int) error
}

// Supervisor owns the worker pool across generations.
type Supervisor struct {
	source RosterSource
	engine whisperx.Engine
	prober DurationProber
	ids    []int
	opts   Options
	base   *slog.Logger
	logger *slog.Logger
	runID  string
	notify RunNotifier
	rec    Recorder
	now    func() time.Time
}

// NewSupervisor wires a supervisor for the given GPU ids. prober may be nil.
func NewSupervisor(source RosterSource, engine whisperx.Engine, prober DurationProber, ids []int, opts Options, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Supervisor{
		source: source,
		engine: engine,
		prober: prober,
		ids:    append([]int(nil), ids...),
		opts:   opts.withDefaults(),
		base:   logger,
		logger: logging.NewComponentLogger(logger, "supervisor"),
		rec:    nopRecorder{},
		now:    time.Now,
	}
}

// SetRecorder registers r to receive progress, heartbeat and restart
// measurements.
func (s *Supervisor) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.rec = r
}

// SetRunID tags every generation with id for log correlation.
func (s *Supervisor) SetRunID(id string) {
	s.runID = id
}

// SetNotifier registers n to hear about the run start and stall restarts.
func (s *Supervisor) SetNotifier(n RunNotifier) {
	s.notify = n
}

// Run processes root until every file has a marker or a permanent failure.
func (s *Supervisor) Run(ctx context.Context, root string) (Result, error) {
	result := Result{Root: root, RunID: s.runID}
	if len(s.ids) == 0 {
		return result, services.Wrap(services.ErrConfiguration, "supervisor", "start", "no GPUs selected", nil)
	}
	ctx = services.WithRunID(ctx, s.runID)
	logger := logging.WithContext(ctx, s.logger)

	for generation := 1; ; generation++ {
		roster, err := s.source.Roster(ctx, root)
		if err != nil {
			return result, err
		}
		if generation == 1 {
			result.Marked = roster.Marked
		}
		if roster.Empty() {
			logger.Info("No files to process",
				logging.String(logging.FieldEventType, "run_empty"),
				logging.Int(logging.FieldGeneration, generation),
				logging.Int("marked", roster.Marked),
			)
			return result, nil
		}
		if generation == 1 && s.notify != nil {
			if err := s.notify.NotifyRunStarted(ctx, root, len(roster.Paths), len(s.ids)); err != nil {
				logger.Warn("start notification failed", logging.Error(err))
			}
		}

		summary, stall, err := s.runGeneration(ctx, generation, roster)
		result.Generations = append(result.Generations, summary)
		if err != nil {
			return result, err
		}
		if stall == nil {
			return result, nil
		}
		if s.opts.MaxRestarts > 0 && result.Restarts >= s.opts.MaxRestarts {
			logging.ErrorWithContext(logger, "restart limit reached", "restart_limit",
				logging.Int("restarts", result.Restarts),
				logging.String(logging.FieldErrorHint, "raise scheduler.max_restarts or investigate the stalled GPU"),
			)
			return result, fmt.Errorf("%w after %d restarts", ErrRestartLimit, result.Restarts)
		}
		result.Restarts++
		logger.Info("restarting pool",
			logging.String(logging.FieldEventType, "pool_restart"),
			logging.Int("restarts", result.Restarts),
			logging.Int("done", summary.Done),
			logging.Int("remaining", summary.Remaining()),
		)
		s.rec.PoolRestarted(stall.Worker)
		if s.notify != nil {
			if err := s.notify.NotifyPoolRestarted(ctx, stall.Worker, stall.Idle, result.Restarts); err != nil {
				logger.Warn("restart notification failed", logging.Error(err))
			}
		}
	}
}

// runGeneration runs one pool over roster. A non-nil Stall means the watchdog
// tore the pool down and the caller should rescan.
func (s *Supervisor) runGeneration(ctx context.Context, generation int, roster scan.Roster) (Summary, *Stall, error) {
	genCtx, cancel := context.WithCancel(services.WithGeneration(ctx, generation))
	defer cancel()

	logger := logging.WithContext(genCtx, logging.NewComponentLogger(s.base, "supervisor"))

	start := s.now()
	total := len(roster.Paths)
	q := queue.NewFromPaths(s.opts.MaxRetries, roster.Paths)
	registry := NewHeartbeatRegistry(s.ids, start)
	watchdog := NewStallWatchdog(registry, s.opts.StallThreshold)
	monitor := NewProgressMonitor(total, start, s.now, logging.WithContext(genCtx, logging.NewComponentLogger(s.base, "progress")))
	events := make(chan queue.Completion, total)

	logger.Info("starting generation",
		logging.String(logging.FieldEventType, "generation_start"),
		logging.Int("files", total),
		logging.Int("marked", roster.Marked),
		logging.Int("workers", len(s.ids)),
	)
	s.rec.GenerationStarted(generation, total, len(s.ids))

	workers := make([]*Worker, 0, len(s.ids))
	var wg sync.WaitGroup
	for _, id := range s.ids {
		w := newWorker(id, s.engine, q, registry, events, s.prober, s.opts, s.now, s.base)
		w.rec = s.rec
		workers = append(workers, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(genCtx)
		}()
	}
	exited := make(chan struct{})
	go func() {
		wg.Wait()
		close(exited)
	}()

	waitExited := exited
	lastCheck := start
	for !monitor.Complete() {
		timer := time.NewTimer(s.opts.ProgressPollInterval)
		select {
		case event := <-events:
			monitor.Observe(event)
			s.rec.TaskCompleted(event)
		case <-waitExited:
			s.drainEvents(events, monitor)
			if monitor.Complete() {
				break
			}
			if !watchdog.Active() || allRetired(registry) {
				timer.Stop()
				logging.ErrorWithContext(logger, "all workers exited with work outstanding", "workers_exited",
					logging.Int("done", monitor.Done()),
					logging.Int("total", total),
					logging.String(logging.FieldErrorHint, "check the worker initialization errors above"),
				)
				return monitor.Summary(), nil, ErrWorkersExited
			}
			// The watchdog will notice the silent workers and restart the pool.
			waitExited = nil
		case <-ctx.Done():
			timer.Stop()
			logger.Info("cancellation requested, stopping workers",
				logging.String(logging.FieldEventType, "run_cancelled"),
				logging.Int("done", monitor.Done()),
				logging.Int("total", total),
			)
			s.teardown(logger, cancel, exited, workers, registry)
			return monitor.Summary(), nil, ctx.Err()
		case <-timer.C:
		}
		timer.Stop()

		now := s.now()
		if monitor.Complete() || now.Sub(lastCheck) < s.opts.StallCheckInterval {
			continue
		}
		lastCheck = now
		for _, h := range collectHealth(workers, registry, now) {
			s.rec.HeartbeatObserved(h.Worker, h.Idle, h.Retired)
		}
		if stall, ok := watchdog.Check(now); ok {
			logging.WarnWithContext(logger, "worker stalled, restarting pool", "worker_stalled",
				logging.Int(logging.FieldGPU, stall.Worker),
				logging.Duration("idle", stall.Idle.Round(time.Millisecond)),
				logging.Duration("threshold", s.opts.StallThreshold),
				logging.String(logging.FieldImpact, "all workers torn down; unfinished files rescanned"),
			)
			s.teardown(logger, cancel, exited, workers, registry)
			summary := monitor.Summary()
			logger.Info("pool torn down",
				logging.String(logging.FieldEventType, "restart_summary"),
				logging.Int("done", summary.Done),
				logging.Int("succeeded", summary.Succeeded),
				logging.Int("failed", summary.Failed),
				logging.Int("remaining", summary.Remaining()),
			)
			return summary, &stall, nil
		}
	}

	select {
	case <-exited:
	case <-ctx.Done():
		s.teardown(logger, cancel, exited, workers, registry)
		return monitor.Summary(), nil, ctx.Err()
	}

	summary := monitor.Summary()
	logger.Info("All tasks completed",
		logging.String(logging.FieldEventType, "generation_complete"),
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("skipped", summary.Skipped),
		logging.Int("failed", summary.Failed),
		logging.Duration("elapsed", summary.Elapsed.Round(time.Millisecond)),
		logging.Duration("processing_time", summary.ProcessingTime.Round(time.Millisecond)),
	)
	return summary, nil, nil
}

// teardown cancels the generation and waits up to ShutdownGrace for workers
// to exit. Workers still running afterwards are abandoned.
func (s *Supervisor) teardown(logger *slog.Logger, cancel context.CancelFunc, exited <-chan struct{}, workers []*Worker, registry *HeartbeatRegistry) {
	cancel()
	timer := time.NewTimer(s.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-exited:
		logger.Debug("all workers stopped")
		return
	case <-timer.C:
	}
	for _, h := range collectHealth(workers, registry, s.now()) {
		if !h.Stuck() {
			continue
		}
		logging.WarnWithContext(logger, "worker did not stop within grace period", "worker_abandoned",
			logging.Int(logging.FieldGPU, h.Worker),
			logging.String("state", h.State.String()),
			logging.Duration("idle", h.Idle.Round(time.Millisecond)),
			logging.Duration("grace", s.opts.ShutdownGrace),
			logging.String(logging.FieldImpact, "goroutine abandoned"),
		)
	}
}

func (s *Supervisor) drainEvents(events <-chan queue.Completion, monitor *ProgressMonitor) {
	for {
		select {
		case event := <-events:
			monitor.Observe(event)
			s.rec.TaskCompleted(event)
		default:
			return
		}
	}
}
