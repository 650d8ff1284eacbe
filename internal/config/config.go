package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Scheduler contains timing and retry configuration for the batch scheduler.
// Intervals are expressed in seconds; fractional values are accepted.
type Scheduler struct {
	MaxRetries           int     `toml:"max_retries"`
	EmptyPollInterval    float64 `toml:"empty_poll_interval"`
	MaxEmptyPolls        int     `toml:"max_empty_polls"`
	StallThreshold       float64 `toml:"stall_threshold"`
	StallCheckInterval   float64 `toml:"stall_check_interval"`
	ProgressPollInterval float64 `toml:"progress_poll_interval"`
	ShutdownGrace        float64 `toml:"shutdown_grace"`
	MaxRestarts          int     `toml:"max_restarts"`
}

// Transcription contains configuration for the WhisperX runtime.
type Transcription struct {
	// Backend selects how a GPU session runs WhisperX: "server" keeps one
	// model-loaded helper process per GPU, "cli" runs `uvx whisperx` per file.
	Backend      string `toml:"backend"`
	Model        string `toml:"model"`
	ComputeType  string `toml:"compute_type"`
	BatchSize    int    `toml:"batch_size"`
	Align        bool   `toml:"align"`
	Language     string `toml:"language"`
	Python       string `toml:"python"`
	UVX          string `toml:"uvx"`
	ReadyTimeout int    `toml:"ready_timeout"`
	HFToken      string `toml:"hf_token"`
	CUDAIndexURL string `toml:"cuda_index_url"`
}

// Scan contains configuration for input discovery.
type Scan struct {
	AudioExtensions []string `toml:"audio_extensions"`
	MarkerExtension string   `toml:"marker_extension"`
}

// GPUs contains configuration for GPU discovery.
type GPUs struct {
	NvidiaSMI string `toml:"nvidia_smi"`
}

// Stats contains configuration for the corpus statistics command.
type Stats struct {
	Workers         int     `toml:"workers"`
	LongFileSeconds float64 `toml:"long_file_seconds"`
}

// Notifications configures optional ntfy push messages.
type Notifications struct {
	// NtfyTopic is the full topic URL; empty disables notifications.
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Metrics configures the optional Prometheus endpoint served during a run.
type Metrics struct {
	// Listen is a host:port for /metrics; empty disables the endpoint.
	Listen string `toml:"listen"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for whisx.
//
// Configuration sections by subsystem:
//   - Paths: log and state directories
//   - Scheduler: retry budget, polling cadence, stall detection
//   - Transcription: WhisperX backend and model settings
//   - Scan: audio extensions and the marker extension
//   - GPUs: GPU discovery binary
//   - Stats: corpus statistics settings
//   - Notifications: ntfy endpoint
//   - Metrics: Prometheus listen address
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Transcription Transcription `toml:"transcription"`
	Scan          Scan          `toml:"scan"`
	GPUs          GPUs          `toml:"gpus"`
	Stats         Stats         `toml:"stats"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("whisx.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for duration probes.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// DurationCachePath returns the sqlite database used to cache audio durations.
func (c *Config) DurationCachePath() string {
	return filepath.Join(c.Paths.StateDir, "durations.db")
}

// LockDir returns the directory holding per-corpus run locks.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// ScratchDir returns the directory the cli backend writes per-GPU output to
// before results are moved next to their inputs.
func (c *Config) ScratchDir() string {
	return filepath.Join(c.Paths.StateDir, "scratch")
}

// HelperDir returns the directory the server backend writes its helper script to.
func (c *Config) HelperDir() string {
	return filepath.Join(c.Paths.StateDir, "helper")
}

// Seconds converts a fractional seconds setting to a duration.
func Seconds(value float64) time.Duration {
	if value <= 0 {
		return 0
	}
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
