// Package preflight provides readiness checks for the filesystem paths and
// external tools a transcription run depends on.
//
// These checks run in two contexts:
//   - `whisx run` calls RunAll before spawning any worker and refuses to start
//     when a check fails, so a doomed run never touches the corpus.
//   - `whisx status` renders the same results as a health table.
package preflight
