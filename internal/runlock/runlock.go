// Package runlock keeps two schedulers from working the same corpus at once.
package runlock

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"whisx/internal/services"
)

// Lock is an acquired advisory lock for one corpus root.
type Lock struct {
	path string
	lock *flock.Flock
}

// PathFor returns the lock file used for root inside dir.
func PathFor(dir, root string) string {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return filepath.Join(dir, hex.EncodeToString(sum[:])[:16]+".lock")
}

// Acquire takes the lock for root without blocking. A lock already held by
// another process is reported as a configuration error.
func Acquire(dir, root string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	path := PathFor(dir, root)
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "runlock", "acquire",
			fmt.Sprintf("Another whisx run is already processing %s (lock %s)", root, path), nil)
	}
	return &Lock{path: path, lock: fl}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return err
	}
	_ = os.Remove(l.path)
	return nil
}
