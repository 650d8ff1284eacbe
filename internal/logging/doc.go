// Package logging assembles the slog loggers used by whisx.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with the run, generation, GPU and file a
// worker is handling. A tee handler lets a run write the console stream and a
// JSON run log at the same time.
package logging
