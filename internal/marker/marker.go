// Package marker derives and checks the per-input result files whose presence
// is the only record that an input has been transcribed.
package marker

import (
	"os"
	"path/filepath"
	"strings"

	"whisx/internal/fileutil"
)

// DefaultExtension is appended to the input path with its extension removed.
const DefaultExtension = ".json"

// Path returns the marker path for input using ext (DefaultExtension when empty).
func Path(input, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ext
}

// Exists reports whether the marker for input is present as a regular file.
func Exists(input, ext string) bool {
	info, err := os.Stat(Path(input, ext))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// Write atomically stores data as the marker for input.
func Write(input, ext string, data []byte) error {
	return fileutil.WriteFileAtomic(Path(input, ext), data, 0o644)
}

// Place moves an already written result file into the marker location for input.
func Place(input, ext, resultPath string) error {
	return fileutil.MoveFile(resultPath, Path(input, ext))
}
