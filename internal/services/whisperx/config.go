package whisperx

import (
	"path/filepath"
	"time"

	"whisx/internal/config"
)

// Config captures runtime settings for WhisperX operations.
type Config struct {
	// Backend is config.BackendServer or config.BackendCLI.
	Backend     string
	Model       string
	ComputeType string
	BatchSize   int
	// Align runs forced alignment after transcription.
	Align bool
	// Language forces a language code; empty autodetects per file.
	Language     string
	HFToken      string
	CUDAIndexURL string
	Python       string
	UVX          string
	// ReadyTimeout bounds how long a server session may take to load its model.
	ReadyTimeout time.Duration
	// HelperDir receives the server helper script.
	HelperDir string
	// ScratchDir receives per-GPU output of the cli backend.
	ScratchDir string
}

// WhisperX configuration constants.
const (
	DefaultModel   = "large-v3-turbo"
	PypiIndexURL   = "https://pypi.org/simple"
	OutputFormat   = "json"
	CUDADevice     = "cuda"
	HelperFileName = "whisx_session.py"
	UVXCommand     = "uvx"
	PythonCommand  = "python3"
)

// ConfigFrom maps the loaded application configuration onto a session Config.
func ConfigFrom(cfg *config.Config) Config {
	t := cfg.Transcription
	return Config{
		Backend:      t.Backend,
		Model:        t.Model,
		ComputeType:  t.ComputeType,
		BatchSize:    t.BatchSize,
		Align:        t.Align,
		Language:     t.Language,
		HFToken:      t.HFToken,
		CUDAIndexURL: t.CUDAIndexURL,
		Python:       t.Python,
		UVX:          t.UVX,
		ReadyTimeout: time.Duration(t.ReadyTimeout) * time.Second,
		HelperDir:    cfg.HelperDir(),
		ScratchDir:   cfg.ScratchDir(),
	}
}

func (c Config) model() string {
	if c.Model != "" {
		return c.Model
	}
	return DefaultModel
}

func (c Config) helperPath() string {
	return filepath.Join(c.HelperDir, HelperFileName)
}
