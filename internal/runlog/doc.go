// Package runlog names, finds and reads the per-run JSON log files that
// `whisx run` writes next to its console output.
//
// Every run tees its records into log_dir/run-<timestamp>-<id>.log. The
// `whisx logs` command uses Latest or Find to pick one, Tail to show its last
// lines and Follow to stream new lines while a run is still going. Format
// renders a JSON record back into a single console line.
package runlog
