package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"whisx/internal/marker"
	"whisx/internal/queue"
	"whisx/internal/scan"
	"whisx/internal/services"
	"whisx/internal/services/whisperx"
	"whisx/internal/testsupport"
)

func TestSupervisorRetriesUntilSuccess(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "1.wav", "2.wav", "3.wav", "4.wav")
	third := paths[2]

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		if path == third && call <= 2 {
			return whisperx.Result{}, errBoom
		}
		return okResult(), nil
	})
	sup := NewSupervisor(wavSource(), engine, nil, []int{0, 1}, fastOptions(), nil)

	result, err := runWithTimeout(t, sup, root, 10*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := result.Final()
	if final.Succeeded != 4 || final.Failed != 0 || final.Done != 4 {
		t.Fatalf("summary = %+v", final)
	}
	if result.Restarts != 0 || len(result.Generations) != 1 {
		t.Fatalf("restarts = %d, generations = %d", result.Restarts, len(result.Generations))
	}
	if got := engine.Calls(third); got != 3 {
		t.Fatalf("third file calls = %d, want 3", got)
	}
	for _, p := range paths {
		if !marker.Exists(p, ".json") {
			t.Fatalf("missing marker for %s", p)
		}
	}
	if engine.closed.Load() != engine.opened.Load() {
		t.Fatalf("sessions opened %d closed %d", engine.opened.Load(), engine.closed.Load())
	}
}

func TestSupervisorPermanentFailure(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "good.wav", "bad.wav")
	bad := paths[1]

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		if path == bad {
			return whisperx.Result{}, errBoom
		}
		return okResult(), nil
	})
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, fastOptions(), nil)
	rec := &countingRecorder{}
	sup.SetRecorder(rec)

	result, err := runWithTimeout(t, sup, root, 10*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec.mu.Lock()
	if rec.retries != 3 || rec.completed != 2 {
		t.Fatalf("recorded retries = %d, completed = %d", rec.retries, rec.completed)
	}
	rec.mu.Unlock()
	final := result.Final()
	if final.Succeeded != 1 || final.Failed != 1 {
		t.Fatalf("summary = %+v", final)
	}
	if len(final.FailedPaths) != 1 || final.FailedPaths[0] != bad {
		t.Fatalf("failed paths = %v", final.FailedPaths)
	}
	if got := engine.Calls(bad); got != 4 {
		t.Fatalf("bad file attempts = %d, want 4", got)
	}
	if marker.Exists(bad, ".json") {
		t.Fatal("failed file must not get a marker")
	}
}

func TestSupervisorZeroRetries(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "bad.wav")

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		return whisperx.Result{}, errBoom
	})
	opts := fastOptions()
	opts.MaxRetries = 0
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, opts, nil)

	result, err := runWithTimeout(t, sup, root, 10*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Final().Failed != 1 || engine.Calls(paths[0]) != 1 {
		t.Fatalf("summary = %+v, calls = %d", result.Final(), engine.Calls(paths[0]))
	}
}

func TestSupervisorEmptyRoster(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "done.wav")
	if err := marker.Write(paths[0], ".json", []byte("{}")); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	engine := newFakeEngine(nil)
	sup := NewSupervisor(wavSource(), engine, nil, []int{0, 1}, fastOptions(), nil)

	result, err := runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Generations) != 0 || result.Marked != 1 {
		t.Fatalf("result = %+v", result)
	}
	if engine.opened.Load() != 0 {
		t.Fatal("no session should open for an empty roster")
	}
}

func TestSupervisorSecondRunFindsNothing(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "a.wav", "b.wav", "c.wav")

	first := newFakeEngine(nil)
	sup := NewSupervisor(wavSource(), first, nil, []int{0, 1}, fastOptions(), nil)
	result, err := runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(result.Generations) != 1 || result.Final().Succeeded != len(paths) {
		t.Fatalf("first result = %+v", result)
	}
	for _, p := range paths {
		if !marker.Exists(p, ".json") {
			t.Fatalf("missing marker for %s", p)
		}
	}

	second := newFakeEngine(nil)
	notifier := &recordingNotifier{}
	sup = NewSupervisor(wavSource(), second, nil, []int{0, 1}, fastOptions(), nil)
	sup.SetNotifier(notifier)
	result, err = runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(result.Generations) != 0 || result.Marked != len(paths) {
		t.Fatalf("second result = %+v", result)
	}
	if second.opened.Load() != 0 {
		t.Fatal("no session should open when everything is transcribed")
	}
	for _, p := range paths {
		if second.Calls(p) != 0 {
			t.Fatalf("%s transcribed again", p)
		}
	}
	if len(notifier.started) != 0 {
		t.Fatalf("nothing to do should not announce a run, got %v", notifier.started)
	}
}

type staticSource struct {
	roster scan.Roster
}

func (s staticSource) Roster(context.Context, string) (scan.Roster, error) {
	return s.roster, nil
}

func TestSupervisorSkipsMarkedItems(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "a.wav", "b.wav")
	// A marker appearing between scan and dequeue still completes the item.
	if err := marker.Write(paths[0], ".json", []byte("{}")); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	engine := newFakeEngine(nil)
	source := staticSource{roster: scan.Roster{Root: root, Paths: paths}}
	sup := NewSupervisor(source, engine, nil, []int{0}, fastOptions(), nil)

	result, err := runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	final := result.Final()
	if final.Done != 2 || final.Skipped != 1 || final.Succeeded != 2 {
		t.Fatalf("summary = %+v", final)
	}
	if engine.Calls(paths[0]) != 0 {
		t.Fatal("marked file must not be transcribed")
	}
}

func TestSupervisorPlacesCLIOutput(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "talk.wav")
	scratch := t.TempDir()

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		out := filepath.Join(scratch, "talk.json")
		if err := os.WriteFile(out, []byte(`{"language":"de"}`), 0o644); err != nil {
			return whisperx.Result{}, err
		}
		return whisperx.Result{OutputPath: out}, nil
	})
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, fastOptions(), nil)
	if _, err := runWithTimeout(t, sup, root, 5*time.Second); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(marker.Path(paths[0], ".json"))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if !strings.Contains(string(data), `"de"`) {
		t.Fatalf("marker = %s", data)
	}
}

func TestSupervisorRecoversFromPanic(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "p.wav")
	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		if call == 1 {
			panic("cuda exploded")
		}
		return okResult(), nil
	})
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, fastOptions(), nil)
	result, err := runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Final().Succeeded != 1 || engine.Calls(paths[0]) != 2 {
		t.Fatalf("summary = %+v, calls = %d", result.Final(), engine.Calls(paths[0]))
	}
}

func TestSupervisorStallRestartsOnce(t *testing.T) {
	root := t.TempDir()
	paths := testsupport.AudioTree(t, root, "a.wav", "b.wav", "c.wav", "d.wav")
	stuck := paths[1]

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		if path == stuck && call == 1 {
			return hangUntilCancelled(ctx)
		}
		return okResult(), nil
	})
	opts := fastOptions()
	opts.StallThreshold = 150 * time.Millisecond
	sup := NewSupervisor(wavSource(), engine, nil, []int{0, 1}, opts, nil)
	notifier := &recordingNotifier{}
	sup.SetNotifier(notifier)
	rec := &countingRecorder{}
	sup.SetRecorder(rec)

	result, err := runWithTimeout(t, sup, root, 10*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notifier.restarts) != 1 || notifier.restarts[0] != 1 {
		t.Fatalf("notifier restarts = %v", notifier.restarts)
	}
	if len(notifier.started) != 1 || notifier.started[0] != [2]int{4, 2} {
		t.Fatalf("run start should be announced once with the first roster, got %v", notifier.started)
	}
	if result.Restarts != 1 || len(result.Generations) != 2 {
		t.Fatalf("restarts = %d, generations = %d", result.Restarts, len(result.Generations))
	}
	first := result.Generations[0]
	if first.Total != 4 || first.Done != 3 {
		t.Fatalf("first generation = %+v", first)
	}
	second := result.Generations[1]
	if second.Total != 1 || second.Succeeded != 1 {
		t.Fatalf("second generation = %+v", second)
	}
	for _, p := range paths {
		if !marker.Exists(p, ".json") {
			t.Fatalf("missing marker for %s", p)
		}
	}
	if engine.Calls(stuck) != 2 {
		t.Fatalf("stuck file calls = %d", engine.Calls(stuck))
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.generations != 2 || rec.completed != 4 || len(rec.restartedGPUs) != 1 {
		t.Fatalf("recorder = %+v", rec)
	}
	if rec.heartbeats == 0 {
		t.Fatal("heartbeat ages should be recorded on stall checks")
	}
}

type countingRecorder struct {
	mu            sync.Mutex
	generations   int
	completed     int
	retries       int
	heartbeats    int
	restartedGPUs []int
}

func (r *countingRecorder) GenerationStarted(int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generations++
}

func (r *countingRecorder) TaskCompleted(queue.Completion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *countingRecorder) TaskRetried(int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}

func (r *countingRecorder) HeartbeatObserved(int, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.heartbeats++
}

func (r *countingRecorder) PoolRestarted(gpu int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.restartedGPUs = append(r.restartedGPUs, gpu)
}

type recordingNotifier struct {
	started  [][2]int
	restarts []int
}

func (n *recordingNotifier) NotifyRunStarted(_ context.Context, _ string, files, gpus int) error {
	n.started = append(n.started, [2]int{files, gpus})
	return nil
}

func (n *recordingNotifier) NotifyPoolRestarted(_ context.Context, _ int, _ time.Duration, restarts int) error {
	n.restarts = append(n.restarts, restarts)
	return nil
}

func TestSupervisorSingleWorkerNeverRestarts(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "slow.wav")

	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		return hangUntilCancelled(ctx)
	})
	opts := fastOptions()
	opts.StallThreshold = 20 * time.Millisecond
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)
	result, err := sup.Run(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
	if result.Restarts != 0 || len(result.Generations) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if engine.closed.Load() != 1 {
		t.Fatalf("session not closed on cancel")
	}
}

func TestSupervisorSingleWorkerInitFailure(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "a.wav")

	engine := newFakeEngine(nil)
	engine.openErr = func(int) error {
		return services.Wrap(services.ErrExternalTool, "whisperx", "open", "model load failed", errBoom)
	}
	sup := NewSupervisor(wavSource(), engine, nil, []int{0}, fastOptions(), nil)

	_, err := runWithTimeout(t, sup, root, 5*time.Second)
	if !errors.Is(err, ErrWorkersExited) {
		t.Fatalf("Run error = %v, want ErrWorkersExited", err)
	}
}

func TestSupervisorRestartLimit(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "a.wav", "b.wav")

	engine := newFakeEngine(nil)
	engine.openErr = func(int) error { return errBoom }
	opts := fastOptions()
	opts.StallThreshold = 30 * time.Millisecond
	opts.MaxRestarts = 1
	sup := NewSupervisor(wavSource(), engine, nil, []int{0, 1}, opts, nil)

	result, err := runWithTimeout(t, sup, root, 10*time.Second)
	if !errors.Is(err, ErrRestartLimit) {
		t.Fatalf("Run error = %v, want ErrRestartLimit", err)
	}
	if result.Restarts != 1 || len(result.Generations) != 2 {
		t.Fatalf("restarts = %d, generations = %d", result.Restarts, len(result.Generations))
	}
}

func TestSupervisorPinsWorkersToGPUs(t *testing.T) {
	root := t.TempDir()
	testsupport.AudioTree(t, root, "a.wav", "b.wav", "c.wav")

	seen := make(chan int, 8)
	engine := newFakeEngine(func(ctx context.Context, gpu int, path string, call int) (whisperx.Result, error) {
		if id, ok := services.GPUFromContext(ctx); !ok || id != gpu {
			return whisperx.Result{}, errors.New("gpu missing from context")
		}
		seen <- gpu
		return okResult(), nil
	})
	sup := NewSupervisor(wavSource(), engine, nil, []int{2, 5}, fastOptions(), nil)
	result, err := runWithTimeout(t, sup, root, 5*time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Final().Succeeded != 3 {
		t.Fatalf("summary = %+v", result.Final())
	}
	close(seen)
	for gpu := range seen {
		if gpu != 2 && gpu != 5 {
			t.Fatalf("unexpected gpu %d", gpu)
		}
	}
}

func TestSupervisorRequiresGPUs(t *testing.T) {
	sup := NewSupervisor(wavSource(), newFakeEngine(nil), nil, nil, fastOptions(), nil)
	if _, err := sup.Run(context.Background(), t.TempDir()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("Run error = %v", err)
	}
}
