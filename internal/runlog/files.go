package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"whisx/internal/services"
)

const (
	filePrefix = "run-"
	fileSuffix = ".log"
	stampTime  = "20060102T150405"
)

// FileName returns the run log name for a run started at start.
func FileName(start time.Time, runID string) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s%s-%s%s", filePrefix, start.Format(stampTime), short, fileSuffix)
}

// Path joins dir and FileName.
func Path(dir string, start time.Time, runID string) string {
	return filepath.Join(dir, FileName(start, runID))
}

// List returns the run logs in dir, newest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
			names = append(names, name)
		}
	}
	// The timestamp is the leading part of the name so lexical order is
	// chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Latest returns the newest run log in dir.
func Latest(dir string) (string, error) {
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	if len(paths) == 0 {
		return "", services.Wrap(services.ErrNotFound, "runlog", "latest", "No run logs in "+dir, nil)
	}
	return paths[0], nil
}

// Find returns the newest run log whose run id starts with prefix.
func Find(dir, prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	paths, err := List(dir)
	if err != nil {
		return "", err
	}
	for _, p := range paths {
		name := strings.TrimSuffix(filepath.Base(p), fileSuffix)
		idx := strings.LastIndex(name, "-")
		if idx >= 0 && strings.HasPrefix(name[idx+1:], prefix) {
			return p, nil
		}
	}
	return "", services.Wrap(services.ErrNotFound, "runlog", "find", "No run log for run "+prefix, nil)
}
