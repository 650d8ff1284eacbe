// Package ffprobe wraps the ffprobe binary for the audio metadata whisx needs:
// container duration and the audio stream layout.
//
// Primary entry points:
//   - Inspect: runs ffprobe and returns the parsed Result
//   - Duration: convenience wrapper returning the container duration
package ffprobe
