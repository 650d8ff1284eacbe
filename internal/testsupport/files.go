package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = 0x42
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// AudioTree creates empty-ish audio files named by rel paths under root and
// returns their absolute paths in the given order.
func AudioTree(t testing.TB, root string, rel ...string) []string {
	t.Helper()
	paths := make([]string, 0, len(rel))
	for _, name := range rel {
		path := filepath.Join(root, filepath.FromSlash(name))
		WriteFile(t, path, 16)
		paths = append(paths, path)
	}
	return paths
}
