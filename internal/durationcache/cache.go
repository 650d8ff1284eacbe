package durationcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS durations (
	path       TEXT PRIMARY KEY,
	size       INTEGER NOT NULL,
	mtime_ns   INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	probed_at  TEXT NOT NULL
);`

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Cache stores probed durations.
type Cache struct {
	db   *sql.DB
	path string
}

// ProbeFunc measures the duration of an audio file.
type ProbeFunc func(ctx context.Context, path string) (time.Duration, error)

// Open initializes or connects to the cache database at path.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Cache{db: db, path: path}, nil
}

// Path returns the database file location.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Lookup returns the cached duration when size and mtime still match.
func (c *Cache) Lookup(ctx context.Context, path string, size int64, mtime time.Time) (time.Duration, bool, error) {
	var (
		cachedSize  int64
		cachedMtime int64
		durationMS  int64
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT size, mtime_ns, duration_ms FROM durations WHERE path = ?", path,
	).Scan(&cachedSize, &cachedMtime, &durationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup duration: %w", err)
	}
	if cachedSize != size || cachedMtime != mtime.UnixNano() {
		return 0, false, nil
	}
	return time.Duration(durationMS) * time.Millisecond, true, nil
}

// Store records the duration for path at the given size and mtime.
func (c *Cache) Store(ctx context.Context, path string, size int64, mtime time.Time, duration time.Duration) error {
	return retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, `
INSERT INTO durations (path, size, mtime_ns, duration_ms, probed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	size = excluded.size,
	mtime_ns = excluded.mtime_ns,
	duration_ms = excluded.duration_ms,
	probed_at = excluded.probed_at`,
			path, size, mtime.UnixNano(), duration.Milliseconds(), time.Now().UTC().Format(time.RFC3339))
		return err
	})
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM durations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count durations: %w", err)
	}
	return n, nil
}

// Duration returns the cached duration for path or probes and stores it.
func (c *Cache) Duration(ctx context.Context, path string, probe ProbeFunc) (time.Duration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if d, ok, err := c.Lookup(ctx, path, info.Size(), info.ModTime()); err == nil && ok {
		return d, nil
	}
	d, err := probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if err := c.Store(ctx, path, info.Size(), info.ModTime(), d); err != nil {
		return d, fmt.Errorf("store duration: %w", err)
	}
	return d, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
