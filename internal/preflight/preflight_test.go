package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"whisx/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckGPUs(t *testing.T) {
	bin := t.TempDir()
	ok := testsupport.WriteStub(t, bin, "nvsmi-ok", "printf '0\\n1\\n'")
	result := CheckGPUs(context.Background(), ok)
	if !result.Passed || !strings.Contains(result.Detail, "2 detected (0,1)") {
		t.Fatalf("unexpected result %+v", result)
	}

	empty := testsupport.WriteStub(t, bin, "nvsmi-empty", "exit 0")
	if result := CheckGPUs(context.Background(), empty); result.Passed {
		t.Fatalf("expected failure with no GPUs, got %+v", result)
	}

	broken := testsupport.WriteStub(t, bin, "nvsmi-broken", "exit 9")
	if result := CheckGPUs(context.Background(), broken); result.Passed {
		t.Fatalf("expected failure for broken nvidia-smi, got %+v", result)
	}
}

func TestRunAllReportsFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	bin := t.TempDir()
	cfg.GPUs.NvidiaSMI = testsupport.WriteStub(t, bin, "nvidia-smi", "echo 0")
	cfg.Transcription.Python = testsupport.WriteStub(t, bin, "python3", "exit 0")

	results := RunAll(context.Background(), cfg, filepath.Join(t.TempDir(), "missing-corpus"))
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Corpus directory" {
		t.Fatalf("expected only the corpus check to fail, got %+v", failed)
	}

	root := t.TempDir()
	if failed := Failed(RunAll(context.Background(), cfg, root)); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
}
