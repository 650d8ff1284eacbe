package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisx/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test and
// timings short enough for scheduler tests.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Scheduler.EmptyPollInterval = 0.01
	cfgVal.Scheduler.StallCheckInterval = 0.01
	cfgVal.Scheduler.ProgressPollInterval = 0.01
	cfgVal.Scheduler.ShutdownGrace = 0.5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackend selects the transcription backend on the test config.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.Backend = backend
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, nvidia-smi and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"nvidia-smi", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			WriteStub(b.t, binDir, name, "exit 0")
		}
		prependPath(b.t, binDir)
	}
}

// WriteStub writes an executable shell script named name into dir whose body
// is the given shell snippet, and returns its path.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + strings.TrimSpace(body) + "\n"
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

func prependPath(t testing.TB, dir string) {
	t.Helper()
	current := os.Getenv("PATH")
	value := dir
	if current != "" {
		value = dir + string(os.PathListSeparator) + current
	}
	if setter, ok := t.(interface{ Setenv(string, string) }); ok {
		setter.Setenv("PATH", value)
		return
	}
	t.Fatalf("testing.TB does not support Setenv")
}
