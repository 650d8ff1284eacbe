// Package deps reports whether the external binaries whisx shells out to are
// installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"whisx/internal/config"
)

// Requirement defines an external dependency whisx relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries needed by the configured backend.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{Name: "nvidia-smi", Command: cfg.GPUs.NvidiaSMI, Description: "GPU discovery"},
		{Name: "ffprobe", Command: cfg.FFprobeBinary(), Description: "Audio duration probing", Optional: true},
	}
	switch cfg.Transcription.Backend {
	case config.BackendCLI:
		reqs = append(reqs, Requirement{Name: "uvx", Command: cfg.Transcription.UVX, Description: "Runs whisperx per file"})
	default:
		reqs = append(reqs,
			Requirement{Name: "python", Command: cfg.Transcription.Python, Description: "Hosts the per-GPU whisperx session"},
			Requirement{Name: "uvx", Command: cfg.Transcription.UVX, Description: "Fallback whisperx runner", Optional: true},
		)
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the required (non-optional) dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
