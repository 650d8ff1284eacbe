// Package workflow runs the multi-GPU transcription scheduler.
//
// A Supervisor drives generations. Each generation scans the corpus, loads
// the pending files into a fresh queue, and starts one Worker per GPU. Workers
// pull items, transcribe them through a GPU-bound whisperx session, write the
// marker next to the input and report a completion event. Failures go back on
// the queue until the retry budget is spent.
//
// The supervisor's control loop feeds completion events to the
// ProgressMonitor, which prints done/total and an ETA after every event. With
// more than one GPU it also consults the StallWatchdog: a single worker whose
// heartbeat in the HeartbeatRegistry is older than the stall threshold tears
// the whole pool down. The next generation starts from a fresh scan, so the
// markers are the only state that survives a restart.
package workflow
