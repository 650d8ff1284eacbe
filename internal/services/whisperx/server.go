package whisperx

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"whisx/internal/fileutil"
	"whisx/internal/logging"
	"whisx/internal/services"
)

//go:embed helper.py
var helperScript []byte

const (
	defaultReadyTimeout = 10 * time.Minute
	closeGrace          = 5 * time.Second
	stderrTailLines     = 20
)

// ServerEngine keeps one model-loaded helper process per GPU.
type ServerEngine struct {
	cfg    Config
	logger *slog.Logger

	helperOnce sync.Once
	helperErr  error
}

func (e *ServerEngine) ensureHelper() (string, error) {
	e.helperOnce.Do(func() {
		if strings.TrimSpace(e.cfg.HelperDir) == "" {
			e.helperErr = services.Wrap(services.ErrConfiguration, "whisperx", "install helper", "Helper directory not configured", nil)
			return
		}
		if err := os.MkdirAll(e.cfg.HelperDir, 0o755); err != nil {
			e.helperErr = services.Wrap(services.ErrConfiguration, "whisperx", "install helper", "Create helper directory", err)
			return
		}
		if err := fileutil.WriteFileAtomic(e.cfg.helperPath(), helperScript, 0o644); err != nil {
			e.helperErr = services.Wrap(services.ErrConfiguration, "whisperx", "install helper", "Write helper script", err)
		}
	})
	return e.cfg.helperPath(), e.helperErr
}

// Open starts the helper pinned to gpu and waits until its model is loaded.
// The helper lives until Close or until ctx is cancelled.
func (e *ServerEngine) Open(ctx context.Context, gpu int) (Session, error) {
	helper, err := e.ensureHelper()
	if err != nil {
		return nil, err
	}

	python := e.cfg.Python
	if python == "" {
		python = PythonCommand
	}
	cmd := commandContext(ctx, python, e.helperArgs(helper)...) //nolint:gosec
	cmd.Env = gpuEnv(cmd.Env, gpu, e.cfg.HFToken)
	isolate(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("whisperx: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "whisperx", "start session", "Failed to launch "+python, err)
	}

	s := &serverSession{
		gpu:       gpu,
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan response, 1),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
		logger:    e.logger.With(logging.Int(logging.FieldGPU, gpu)),
	}
	s.start(stdout, stderr)

	timeout := e.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	if err := s.awaitReady(ctx, timeout); err != nil {
		s.kill()
		return nil, err
	}
	s.logger.Debug("whisperx session ready", logging.Int("pid", cmd.Process.Pid))
	return s, nil
}

func (e *ServerEngine) helperArgs(helper string) []string {
	batch := e.cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	args := []string{helper, "--model", e.cfg.model(), "--batch_size", strconv.Itoa(batch)}
	if e.cfg.ComputeType != "" {
		args = append(args, "--compute_type", e.cfg.ComputeType)
	}
	if lang := strings.TrimSpace(e.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if e.cfg.Align {
		args = append(args, "--align")
	}
	return args
}

type request struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

type response struct {
	ID     int64           `json:"id"`
	Ready  bool            `json:"ready"`
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result json.RawMessage `json:"result"`
}

type serverSession struct {
	gpu    int
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	logger *slog.Logger

	responses chan response
	done      chan struct{}
	doneOnce  sync.Once
	exited    chan struct{}
	waitErr   error
	nextID    int64

	tailMu sync.Mutex
	tail   []string

	closeOnce sync.Once
}

func (s *serverSession) start(stdout, stderr io.Reader) {
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readResponses(stdout)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(stderr)
	}()
	go func() {
		readers.Wait()
		s.waitErr = s.cmd.Wait()
		close(s.exited)
	}()
}

func (s *serverSession) readResponses(r io.Reader) {
	defer close(s.responses)
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var resp response
			if jsonErr := json.Unmarshal(trimmed, &resp); jsonErr != nil {
				s.logger.Debug("ignoring non-protocol output", logging.String("line", string(trimmed)))
			} else {
				select {
				case s.responses <- resp:
				case <-s.done:
				}
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *serverSession) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.tailMu.Lock()
		s.tail = append(s.tail, line)
		if len(s.tail) > stderrTailLines {
			s.tail = s.tail[len(s.tail)-stderrTailLines:]
		}
		s.tailMu.Unlock()
	}
}

func (s *serverSession) stderrTail() string {
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	return strings.Join(s.tail, " | ")
}

func (s *serverSession) awaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case resp, ok := <-s.responses:
			if !ok {
				<-s.exited
				return services.Wrap(services.ErrExternalTool, "whisperx", "start session",
					"Session exited before loading the model: "+s.stderrTail(), s.waitErr)
			}
			if resp.Ready {
				return nil
			}
		case <-timer.C:
			return services.Wrap(services.ErrExternalTool, "whisperx", "start session",
				fmt.Sprintf("Model not ready after %s", timeout), nil)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Transcribe sends one request and waits for its response. Cancelling ctx
// kills the session.
func (s *serverSession) Transcribe(ctx context.Context, path string) (Result, error) {
	if path == "" {
		return Result{}, errors.New("transcribe: source path required")
	}
	select {
	case <-s.exited:
		return Result{}, s.exitError()
	default:
	}

	s.nextID++
	id := s.nextID
	line, err := json.Marshal(request{ID: id, Path: path})
	if err != nil {
		return Result{}, err
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", "Write request", err)
	}

	for {
		select {
		case resp, ok := <-s.responses:
			if !ok {
				<-s.exited
				return Result{}, s.exitError()
			}
			if resp.ID != id {
				continue
			}
			if !resp.OK {
				return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", resp.Error, nil)
			}
			language, segments, err := summarize(resp.Result)
			if err != nil {
				return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", "", err)
			}
			return Result{Payload: []byte(resp.Result), Language: language, Segments: segments}, nil
		case <-ctx.Done():
			s.kill()
			return Result{}, ctx.Err()
		}
	}
}

func (s *serverSession) exitError() error {
	return services.Wrap(services.ErrExternalTool, "whisperx", "transcribe",
		"Session exited: "+s.stderrTail(), s.waitErr)
}

func (s *serverSession) stopReading() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *serverSession) kill() {
	s.stopReading()
	_ = killGroup(s.cmd)
	<-s.exited
}

// Close asks the helper to exit by closing stdin and kills it if it does not
// exit within a few seconds.
func (s *serverSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		s.stopReading()
		timer := time.NewTimer(closeGrace)
		defer timer.Stop()
		select {
		case <-s.exited:
		case <-timer.C:
			s.logger.Debug("whisperx session did not exit, killing")
			s.kill()
		}
	})
	return nil
}
