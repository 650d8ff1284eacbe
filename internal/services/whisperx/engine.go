package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"whisx/internal/config"
	"whisx/internal/logging"
)

var commandContext = exec.CommandContext

// Result is one finished transcription. Exactly one of Payload or OutputPath
// is set: the server backend returns the JSON inline, the cli backend leaves
// a file in its scratch directory for the caller to move into place.
type Result struct {
	Payload    []byte
	OutputPath string
	Language   string
	Segments   int
}

// Session is a GPU-bound transcription context. Sessions are used by a single
// goroutine.
type Session interface {
	Transcribe(ctx context.Context, path string) (Result, error)
	Close() error
}

// Engine opens sessions.
type Engine interface {
	Open(ctx context.Context, gpu int) (Session, error)
}

// NewEngine returns the Engine for cfg.Backend.
func NewEngine(cfg Config, logger *slog.Logger) (Engine, error) {
	logger = logging.NewComponentLogger(logger, "whisperx")
	switch cfg.Backend {
	case "", config.BackendServer:
		return &ServerEngine{cfg: cfg, logger: logger}, nil
	case config.BackendCLI:
		return &CLIEngine{cfg: cfg, logger: logger}, nil
	default:
		return nil, fmt.Errorf("whisperx: unknown backend %q", cfg.Backend)
	}
}

// gpuEnv returns base (os.Environ when nil) with the subprocess pinned to gpu.
func gpuEnv(base []string, gpu int, hfToken string) []string {
	if base == nil {
		base = os.Environ()
	}
	env := make([]string, 0, len(base)+3)
	for _, kv := range base {
		if strings.HasPrefix(kv, "CUDA_VISIBLE_DEVICES=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, "CUDA_VISIBLE_DEVICES="+strconv.Itoa(gpu))
	// Torch 2.6 defaults torch.load to weights_only, which pyannote checkpoints reject.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		env = append(env, "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if hfToken != "" && os.Getenv("HF_TOKEN") == "" {
		env = append(env, "HF_TOKEN="+hfToken)
	}
	return env
}

type payloadSummary struct {
	Language string            `json:"language"`
	Segments []json.RawMessage `json:"segments"`
}

func summarize(payload []byte) (string, int, error) {
	var summary payloadSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return "", 0, fmt.Errorf("parse whisperx json: %w", err)
	}
	return summary.Language, len(summary.Segments), nil
}
