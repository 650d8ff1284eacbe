package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisx/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
	logDir     string
	stateDir   string
}

// setupCLITestEnv writes a config pointing at temp directories and an
// nvidia-smi stub that reports GPUs 0 and 1.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	nvidiaSMI := testsupport.WriteStub(t, filepath.Join(base, "bin"), "nvidia-smi", "printf '0\\n1\\n'")

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "whisx.toml"),
		logDir:     filepath.Join(base, "logs"),
		stateDir:   filepath.Join(base, "state"),
	}
	body := fmt.Sprintf(`[paths]
log_dir = %q
state_dir = %q

[gpus]
nvidia_smi = %q

[scan]
audio_extensions = [".wav"]
`, env.logDir, env.stateDir, nvidiaSMI)
	if err := os.WriteFile(env.configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q in output:\n%s", needle, haystack)
	}
}
