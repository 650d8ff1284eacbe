// Package scan discovers audio inputs under a corpus root and builds the
// roster of files that still need a transcription.
package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"whisx/internal/config"
	"whisx/internal/logging"
	"whisx/internal/marker"
	"whisx/internal/services"
)

// Roster is the result of one scan.
type Roster struct {
	Root string
	// Paths lists inputs without a marker, sorted lexically.
	Paths []string
	// Marked counts inputs that already have a marker.
	Marked int
	// Unreadable counts directories that could not be listed.
	Unreadable int
}

// Total returns the number of audio files seen, marked or not.
func (r Roster) Total() int {
	return len(r.Paths) + r.Marked
}

// Empty reports whether there is nothing left to transcribe.
func (r Roster) Empty() bool {
	return len(r.Paths) == 0
}

// Source walks a directory tree looking for audio files.
type Source struct {
	extensions map[string]struct{}
	markerExt  string
	logger     *slog.Logger
}

// NewSource builds a Source from scan configuration.
func NewSource(cfg config.Scan, logger *slog.Logger) *Source {
	exts := make(map[string]struct{}, len(cfg.AudioExtensions))
	for _, ext := range cfg.AudioExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Source{
		extensions: exts,
		markerExt:  cfg.MarkerExtension,
		logger:     logging.NewComponentLogger(logger, "scan"),
	}
}

// MarkerExtension returns the marker extension this source checks for.
func (s *Source) MarkerExtension() string {
	return s.markerExt
}

// IsAudio reports whether path carries one of the configured audio extensions.
func (s *Source) IsAudio(path string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// AudioFiles returns every audio file under root, sorted, together with the
// number of directories that could not be read.
func (s *Source) AudioFiles(ctx context.Context, root string) ([]string, int, error) {
	if err := checkRoot(root); err != nil {
		return nil, 0, err
	}

	var (
		files      []string
		unreadable int
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			unreadable++
			logging.WarnWithContext(s.logger, "skipping unreadable directory", "scan_dir_skipped",
				logging.String("dir", path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "files below this directory are not scheduled"),
				logging.String(logging.FieldErrorHint, "check directory permissions"),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if s.IsAudio(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, unreadable, ctx.Err()
		}
		return nil, unreadable, services.Wrap(services.ErrConfiguration, "scan", "walk", "Failed to read corpus root", err)
	}
	sort.Strings(files)
	return files, unreadable, nil
}

// Roster scans root and returns the audio files that still lack a marker.
// The scan is read-only.
func (s *Source) Roster(ctx context.Context, root string) (Roster, error) {
	files, unreadable, err := s.AudioFiles(ctx, root)
	if err != nil {
		return Roster{}, err
	}
	roster := Roster{Root: root, Unreadable: unreadable}
	for _, path := range files {
		if marker.Exists(path, s.markerExt) {
			roster.Marked++
			continue
		}
		roster.Paths = append(roster.Paths, path)
	}
	s.logger.Debug("scan complete",
		logging.String("root", root),
		logging.Int("pending", len(roster.Paths)),
		logging.Int("marked", roster.Marked),
		logging.Int("unreadable_dirs", unreadable),
	)
	return roster, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "scan", "stat root", "Input directory is not accessible", err)
	}
	if !info.IsDir() {
		return services.Wrap(services.ErrConfiguration, "scan", "stat root", "Input path is not a directory: "+root, nil)
	}
	return nil
}
