package whisperx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whisx/internal/config"
	"whisx/internal/logging"
	"whisx/internal/services"
)

func useHelperProcess(t *testing.T, mode string, captured *[]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "WHISPERX_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = original })
}

func testConfig(t *testing.T, backend string) Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Transcription.Backend = backend
	out := ConfigFrom(&cfg)
	out.ReadyTimeout = 5 * time.Second
	return out
}

func newEngine(t *testing.T, cfg Config) Engine {
	t.Helper()
	engine, err := NewEngine(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func TestNewEngineRejectsUnknownBackend(t *testing.T) {
	if _, err := NewEngine(Config{Backend: "grpc"}, slog.Default()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestServerSessionTranscribes(t *testing.T) {
	var captured []string
	useHelperProcess(t, "server", &captured)
	cfg := testConfig(t, config.BackendServer)
	cfg.Align = true

	session, err := newEngine(t, cfg).Open(context.Background(), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	result, err := session.Transcribe(context.Background(), "/data/clip.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Language != "en" || result.Segments != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.Contains(string(result.Payload), `"gpu":"1"`) {
		t.Fatalf("session should be pinned to GPU 1, payload %s", result.Payload)
	}
	if result.OutputPath != "" {
		t.Fatalf("server backend returns inline payloads, got path %q", result.OutputPath)
	}

	if _, err := session.Transcribe(context.Background(), "/data/fail.mp3"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := session.Transcribe(context.Background(), "/data/second.mp3"); err != nil {
		t.Fatalf("session should survive a failed request: %v", err)
	}

	if _, err := os.Stat(cfg.helperPath()); err != nil {
		t.Fatalf("helper script not installed: %v", err)
	}
	joined := strings.Join(captured, " ")
	for _, want := range []string{cfg.helperPath(), "--model large-v3-turbo", "--align"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in helper args %q", want, joined)
		}
	}
}

func TestServerSessionExitBeforeReady(t *testing.T) {
	useHelperProcess(t, "crash", nil)
	_, err := newEngine(t, testConfig(t, config.BackendServer)).Open(context.Background(), 0)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "CUDA out of memory") {
		t.Fatalf("error should carry stderr tail: %v", err)
	}
}

func TestServerSessionReadyTimeout(t *testing.T) {
	useHelperProcess(t, "hang", nil)
	cfg := testConfig(t, config.BackendServer)
	cfg.ReadyTimeout = 100 * time.Millisecond
	if _, err := newEngine(t, cfg).Open(context.Background(), 0); err == nil {
		t.Fatal("expected ready timeout")
	}
}

func TestServerSessionCancelKills(t *testing.T) {
	useHelperProcess(t, "stall", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := newEngine(t, testConfig(t, config.BackendServer)).Open(ctx, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	go func() {
		_, err := session.Transcribe(ctx, "/data/clip.mp3")
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Transcribe did not return after cancellation")
	}
}

func TestCLISessionWritesScratchOutput(t *testing.T) {
	var captured []string
	useHelperProcess(t, "cli", &captured)
	cfg := testConfig(t, config.BackendCLI)

	session, err := newEngine(t, cfg).Open(context.Background(), 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	result, err := session.Transcribe(context.Background(), "/data/in/clip.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	sessionDir := filepath.Dir(result.OutputPath)
	if filepath.Dir(sessionDir) != filepath.Join(cfg.ScratchDir, "gpu-2") || filepath.Base(result.OutputPath) != "clip.json" {
		t.Fatalf("OutputPath = %q, want clip.json in a session directory under gpu-2", result.OutputPath)
	}
	if result.Language != "de" {
		t.Fatalf("Language = %q", result.Language)
	}

	joined := strings.Join(captured, " ")
	for _, want := range []string{"whisperx /data/in/clip.mp3", "--output_format json", "--no_align", "--device cuda"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args %q", want, joined)
		}
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(sessionDir); !os.IsNotExist(err) {
		t.Fatalf("session dir should be removed on close, stat err=%v", err)
	}
}

func TestCLISessionsOnSameGPUKeepSeparateScratch(t *testing.T) {
	useHelperProcess(t, "cli", nil)
	engine := newEngine(t, testConfig(t, config.BackendCLI))

	abandoned, err := engine.Open(context.Background(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	current, err := engine.Open(context.Background(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer current.Close()

	result, err := current.Transcribe(context.Background(), "/data/next.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if err := abandoned.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("closing another session removed this session's output: %v", err)
	}
}

func TestCLISessionCancelKillsChildProcesses(t *testing.T) {
	useHelperProcess(t, "cli-spawn", nil)
	session, err := newEngine(t, testConfig(t, config.BackendCLI)).Open(context.Background(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := session.Transcribe(ctx, "/data/clip.mp3")
		done <- err
	}()
	time.Sleep(200 * time.Millisecond)
	cancelled := time.Now()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if waited := time.Since(cancelled); waited > 3*time.Second {
			t.Fatalf("Transcribe returned %s after cancel; child kept the pipes open", waited)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Transcribe did not return after cancellation")
	}
}

func TestCLISessionFailure(t *testing.T) {
	useHelperProcess(t, "cli-fail", nil)
	session, err := newEngine(t, testConfig(t, config.BackendCLI)).Open(context.Background(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()
	_, err = session.Transcribe(context.Background(), "/data/clip.mp3")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestGPUEnvReplacesVisibleDevices(t *testing.T) {
	env := gpuEnv([]string{"PATH=/bin", "CUDA_VISIBLE_DEVICES=0,1"}, 3, "tok")
	joined := strings.Join(env, "\n")
	if strings.Contains(joined, "CUDA_VISIBLE_DEVICES=0,1") {
		t.Fatalf("inherited device list should be dropped: %v", env)
	}
	if !strings.Contains(joined, "CUDA_VISIBLE_DEVICES=3") {
		t.Fatalf("missing device pin: %v", env)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	switch os.Getenv("WHISPERX_HELPER_MODE") {
	case "server", "stall":
		stall := os.Getenv("WHISPERX_HELPER_MODE") == "stall"
		fmt.Fprintln(os.Stdout, "loading model...")
		fmt.Fprintln(os.Stdout, `{"ready":true}`)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				os.Exit(2)
			}
			if stall {
				time.Sleep(time.Minute)
			}
			var resp map[string]any
			if strings.Contains(req.Path, "fail") {
				resp = map[string]any{"id": req.ID, "ok": false, "error": "RuntimeError: bad audio"}
			} else {
				resp = map[string]any{"id": req.ID, "ok": true, "result": map[string]any{
					"language": "en",
					"segments": []any{map[string]any{"text": "hi", "start": 0, "end": 1}},
					"gpu":      os.Getenv("CUDA_VISIBLE_DEVICES"),
				}}
			}
			data, _ := json.Marshal(resp)
			fmt.Fprintln(os.Stdout, string(data))
		}
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "RuntimeError: CUDA out of memory")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "cli":
		var source, outDir string
		for i, arg := range args {
			if arg == "whisperx" && i+1 < len(args) {
				source = args[i+1]
			}
			if arg == "--output_dir" && i+1 < len(args) {
				outDir = args[i+1]
			}
		}
		base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
		payload := `{"language":"de","segments":[]}`
		if err := os.WriteFile(filepath.Join(outDir, base+".json"), []byte(payload), 0o644); err != nil {
			os.Exit(3)
		}
		os.Exit(0)
	case "cli-spawn":
		// Behaves like uvx: the real work happens in a child that shares
		// stdout and outlives a kill of the direct child.
		child := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--")
		child.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "WHISPERX_HELPER_MODE=hang")
		child.Stdout = os.Stdout
		child.Stderr = os.Stderr
		if err := child.Start(); err != nil {
			os.Exit(4)
		}
		_ = child.Wait()
		os.Exit(0)
	case "cli-fail":
		fmt.Fprintln(os.Stderr, "Traceback: failed to load audio")
		os.Exit(1)
	}
	os.Exit(0)
}
