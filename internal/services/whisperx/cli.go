package whisperx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"whisx/internal/logging"
	"whisx/internal/services"
)

// CLIEngine runs `uvx whisperx` once per file.
type CLIEngine struct {
	cfg    Config
	logger *slog.Logger
}

// Open prepares a scratch directory for gpu. Each session gets its own
// directory so a session abandoned by a restart cannot remove the output of
// its successor on the same GPU.
func (e *CLIEngine) Open(ctx context.Context, gpu int) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.cfg.ScratchDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", "open", "Scratch directory not configured", nil)
	}
	parent := filepath.Join(e.cfg.ScratchDir, "gpu-"+strconv.Itoa(gpu))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", "open", "Create scratch directory", err)
	}
	dir, err := os.MkdirTemp(parent, "session-")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "whisperx", "open", "Create session directory", err)
	}
	return &cliSession{
		cfg:     e.cfg,
		gpu:     gpu,
		scratch: dir,
		logger:  e.logger.With(logging.Int(logging.FieldGPU, gpu)),
	}, nil
}

type cliSession struct {
	cfg     Config
	gpu     int
	scratch string
	logger  *slog.Logger
}

func (s *cliSession) Transcribe(ctx context.Context, path string) (Result, error) {
	if path == "" {
		return Result{}, errors.New("transcribe: source path required")
	}

	binary := s.cfg.UVX
	if binary == "" {
		binary = UVXCommand
	}
	args := s.buildArgs(path)
	cmd := commandContext(ctx, binary, args...) //nolint:gosec
	cmd.Env = gpuEnv(cmd.Env, s.gpu, s.cfg.HFToken)
	isolate(cmd)
	s.logger.Debug("launching whisperx", logging.String("command", binary), logging.String("args", strings.Join(args, " ")))

	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "transcribe", tail(string(output), 400), err)
	}

	baseName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outputPath := filepath.Join(s.scratch, baseName+".json")
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "read output", "whisperx produced no JSON output", err)
	}
	language, segments, err := summarize(data)
	if err != nil {
		_ = os.Remove(outputPath)
		return Result{}, services.Wrap(services.ErrExternalTool, "whisperx", "read output", "", err)
	}
	return Result{OutputPath: outputPath, Language: language, Segments: segments}, nil
}

func (s *cliSession) Close() error {
	return os.RemoveAll(s.scratch)
}

// buildArgs constructs the uvx command arguments for WhisperX.
func (s *cliSession) buildArgs(source string) []string {
	args := make([]string, 0, 24)

	indexURL := s.cfg.CUDAIndexURL
	if indexURL != "" {
		args = append(args, "--index-url", indexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	batch := s.cfg.BatchSize
	if batch <= 0 {
		batch = 16
	}
	args = append(args,
		"whisperx",
		source,
		"--model", s.cfg.model(),
		"--device", CUDADevice,
		"--batch_size", strconv.Itoa(batch),
		"--output_dir", s.scratch,
		"--output_format", OutputFormat,
	)
	if s.cfg.ComputeType != "" {
		args = append(args, "--compute_type", s.cfg.ComputeType)
	}
	if !s.cfg.Align {
		args = append(args, "--no_align")
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	return args
}

func tail(output string, limit int) string {
	output = strings.TrimSpace(output)
	if len(output) <= limit {
		return output
	}
	return fmt.Sprintf("...%s", output[len(output)-limit:])
}
