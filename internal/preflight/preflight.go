package preflight

import (
	"context"

	"whisx/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the preflight checks for a run over root. An empty root
// skips the corpus check.
func RunAll(ctx context.Context, cfg *config.Config, root string) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	if root != "" {
		results = append(results, CheckDirectoryAccess("Corpus directory", root))
	}
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	for _, status := range CheckSystemDeps(cfg) {
		if status.Optional && !status.Available {
			continue
		}
		detail := status.Command
		if !status.Available {
			detail = status.Detail
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}
	results = append(results, CheckGPUs(ctx, cfg.GPUs.NvidiaSMI))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
