// Package metrics exports scheduler progress as Prometheus metrics.
//
// Metrics implements workflow.Recorder. Each Metrics owns its registry, and
// Serve exposes it on /metrics for the lifetime of a run.
package metrics
