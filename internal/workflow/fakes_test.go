package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"whisx/internal/config"
	"whisx/internal/scan"
	"whisx/internal/services/whisperx"
)

type transcribeFunc func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error)

type fakeEngine struct {
	openErr    func(gpu int) error
	transcribe transcribeFunc

	mu     sync.Mutex
	calls  map[string]int
	opened atomic.Int32
	closed atomic.Int32
}

func newFakeEngine(fn transcribeFunc) *fakeEngine {
	return &fakeEngine{transcribe: fn, calls: make(map[string]int)}
}

func (e *fakeEngine) Open(ctx context.Context, gpu int) (whisperx.Session, error) {
	if e.openErr != nil {
		if err := e.openErr(gpu); err != nil {
			return nil, err
		}
	}
	e.opened.Add(1)
	return &fakeSession{engine: e, gpu: gpu}, nil
}

func (e *fakeEngine) Calls(path string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[path]
}

type fakeSession struct {
	engine *fakeEngine
	gpu    int
}

func (s *fakeSession) Transcribe(ctx context.Context, path string) (whisperx.Result, error) {
	s.engine.mu.Lock()
	s.engine.calls[path]++
	call := s.engine.calls[path]
	s.engine.mu.Unlock()
	if s.engine.transcribe == nil {
		return okResult(), nil
	}
	return s.engine.transcribe(ctx, s.gpu, path, call)
}

func (s *fakeSession) Close() error {
	s.engine.closed.Add(1)
	return nil
}

func okResult() whisperx.Result {
	return whisperx.Result{Payload: []byte(`{"language":"en","segments":[]}`), Language: "en"}
}

var errBoom = errors.New("boom")

func wavSource() *scan.Source {
	return scan.NewSource(config.Scan{AudioExtensions: []string{".wav"}, MarkerExtension: ".json"}, nil)
}

func fastOptions() Options {
	return Options{
		MaxRetries:           3,
		EmptyPollInterval:    5 * time.Millisecond,
		MaxEmptyPolls:        3,
		StallThreshold:       time.Second,
		StallCheckInterval:   5 * time.Millisecond,
		ProgressPollInterval: 5 * time.Millisecond,
		ShutdownGrace:        500 * time.Millisecond,
		MarkerExtension:      ".json",
	}
}

func runWithTimeout(t *testing.T, sup *Supervisor, root string, timeout time.Duration) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sup.Run(ctx, root)
}

// hangUntilCancelled blocks like a wedged GPU call until teardown.
func hangUntilCancelled(ctx context.Context) (whisperx.Result, error) {
	<-ctx.Done()
	return whisperx.Result{}, ctx.Err()
}
