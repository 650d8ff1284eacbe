package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"whisx/internal/logging"
	"whisx/internal/marker"
	"whisx/internal/queue"
	"whisx/internal/services"
	"whisx/internal/services/whisperx"
)

// WorkerState is the lifecycle position of a Worker.
type WorkerState int32

const (
	StateInitializing WorkerState = iota
	StateRunning
	StateDraining
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DurationProber measures audio length for real-time-factor logging.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Worker processes queue items on one GPU.
type Worker struct {
	id       int
	engine   whisperx.Engine
	queue    *queue.Queue
	registry *HeartbeatRegistry
	events   chan<- queue.Completion
	prober   DurationProber
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
	rec      Recorder

	state   atomic.Int32
	drained atomic.Bool
}

func newWorker(id int, engine whisperx.Engine, q *queue.Queue, registry *HeartbeatRegistry, events chan<- queue.Completion, prober DurationProber, opts Options, now func() time.Time, logger *slog.Logger) *Worker {
	return &Worker{
		id:       id,
		engine:   engine,
		queue:    q,
		registry: registry,
		events:   events,
		prober:   prober,
		opts:     opts,
		now:      now,
		logger:   logging.NewComponentLogger(logger, "worker"),
		rec:      nopRecorder{},
	}
}

// ID returns the GPU id the worker is bound to.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Drained reports whether the worker exited because the queue ran dry.
func (w *Worker) Drained() bool {
	return w.drained.Load()
}

func (w *Worker) setState(state WorkerState) {
	w.state.Store(int32(state))
}

// Run opens the GPU session and processes items until the queue stays empty
// for MaxEmptyPolls consecutive polls or ctx is cancelled. The session is
// closed on every exit path.
func (w *Worker) Run(ctx context.Context) {
	ctx = services.WithGPU(ctx, w.id)
	logger := logging.WithContext(ctx, w.logger)
	w.setState(StateInitializing)
	defer w.setState(StateTerminated)

	session, err := w.engine.Open(ctx, w.id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.ErrorWithContext(logger, "worker failed to initialize", "worker_init_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String(logging.FieldErrorHint, "check the GPU and the transcription backend"),
		)
		return
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to release session", logging.Error(err))
		}
		logger.Debug("session released")
	}()
	logger.Info("worker ready", logging.String(logging.FieldEventType, "worker_ready"))
	w.setState(StateRunning)

	emptyPolls := 0
	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := w.queue.TryDequeue()
		if !ok {
			if emptyPolls >= w.opts.MaxEmptyPolls {
				w.setState(StateDraining)
				w.drained.Store(true)
				w.registry.Retire(w.id)
				logger.Info("no more tasks, worker exiting",
					logging.String(logging.FieldEventType, "worker_drained"),
					logging.Int("empty_polls", emptyPolls),
				)
				return
			}
			emptyPolls++
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.EmptyPollInterval):
			}
			continue
		}
		emptyPolls = 0
		w.registry.Touch(w.id, w.now())
		w.process(ctx, session, item)
	}
}

func (w *Worker) process(ctx context.Context, session whisperx.Session, item queue.Item) {
	ctx = services.WithPath(ctx, item.Path)
	logger := logging.WithContext(ctx, w.logger).With(logging.Int(logging.FieldAttempt, item.Attempt()))

	if marker.Exists(item.Path, w.opts.MarkerExtension) {
		logger.Info("marker already exists, skipping", logging.String(logging.FieldEventType, "task_skipped"))
		w.emit(queue.Completion{
			Path:     item.Path,
			Status:   queue.StatusSuccess,
			Attempts: item.Attempt(),
			Skipped:  true,
			Worker:   w.id,
		})
		return
	}

	logger.Info("processing", logging.String(logging.FieldEventType, "task_start"))
	started := w.now()
	err := w.transcribe(ctx, session, item)
	finished := w.now()
	if ctx.Err() != nil {
		// Teardown: the item is abandoned and the next generation rescans it.
		logger.Debug("task interrupted by teardown")
		return
	}
	w.registry.Touch(w.id, finished)

	if err != nil {
		w.handleFailure(logger, item, err)
		return
	}

	elapsed := finished.Sub(started)
	w.logRealtime(ctx, logger, item.Path, started, finished, elapsed)
	w.emit(queue.Completion{
		Path:           item.Path,
		Status:         queue.StatusSuccess,
		ProcessingTime: elapsed,
		Attempts:       item.Attempt(),
		Worker:         w.id,
	})
}

// transcribe runs one session call and stores the marker. A panic inside the
// session is converted into an error.
func (w *Worker) transcribe(ctx context.Context, session whisperx.Session, item queue.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcription panicked: %v", r)
		}
	}()
	result, err := session.Transcribe(ctx, item.Path)
	if err != nil {
		return err
	}
	if result.OutputPath != "" {
		err = marker.Place(item.Path, w.opts.MarkerExtension, result.OutputPath)
	} else {
		err = marker.Write(item.Path, w.opts.MarkerExtension, result.Payload)
	}
	if err != nil {
		return services.Wrap(services.ErrTransient, "worker", "write marker", "", err)
	}
	return nil
}

func (w *Worker) handleFailure(logger *slog.Logger, item queue.Item, err error) {
	next, retried := w.queue.Retry(item)
	if retried {
		w.rec.TaskRetried(w.id)
		logging.WarnWithContext(logger, "transcription failed, retrying", "task_retry",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Kind(err)),
			logging.String("retry", fmt.Sprintf("%d/%d", next.RetryCount, w.queue.MaxRetries())),
			logging.String(logging.FieldImpact, "file re-queued"),
		)
		return
	}
	logging.ErrorWithContext(logger, "maximum retries reached, giving up", "task_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.String(logging.FieldErrorHint, "inspect the file; rerun to try again"),
	)
	w.emit(queue.Completion{
		Path:     item.Path,
		Status:   queue.StatusPermanentFailure,
		Attempts: item.Attempt(),
		Worker:   w.id,
		Err:      err,
	})
}

func (w *Worker) logRealtime(ctx context.Context, logger *slog.Logger, path string, started, finished time.Time, elapsed time.Duration) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "task_success"),
		logging.Duration("processing_time", elapsed.Round(10*time.Millisecond)),
		logging.String("started", logging.FormatTimestamp(started)),
		logging.String("finished", logging.FormatTimestamp(finished)),
	}
	if w.prober != nil {
		duration, err := w.prober.Duration(ctx, path)
		switch {
		case err != nil:
			logging.WarnWithContext(logger, "could not probe audio duration", "duration_probe_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "real-time factor not reported"),
				logging.String(logging.FieldErrorHint, "check that ffprobe is installed"),
			)
		case elapsed > 0:
			attrs = append(attrs,
				logging.Duration("audio_duration", duration.Round(10*time.Millisecond)),
				logging.Float64("realtime_factor", roundTo(duration.Seconds()/elapsed.Seconds(), 2)),
			)
		}
	}
	logger.Info("transcribed", logging.Args(attrs...)...)
}

func (w *Worker) emit(event queue.Completion) {
	w.events <- event
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}
