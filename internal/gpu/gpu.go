// Package gpu discovers CUDA devices through nvidia-smi and resolves the
// subset a run is allowed to use.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"whisx/internal/services"
)

var commandContext = exec.CommandContext

// DefaultBinary is used when no nvidia-smi path is configured.
const DefaultBinary = "nvidia-smi"

// Detect returns the GPU indices reported by nvidia-smi, sorted ascending.
func Detect(ctx context.Context, binary string) ([]int, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = DefaultBinary
	}
	cmd := commandContext(ctx, binary, "--query-gpu=index", "--format=csv,noheader")
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		msg := "nvidia-smi failed"
		if detail != "" {
			msg += ": " + detail
		}
		return nil, services.Wrap(services.ErrExternalTool, "gpu", "detect", msg, err)
	}
	return ParseIndexList(string(output)), nil
}

// ParseIndexList parses one index per line. Lines that are not plain
// non-negative integers, such as "No devices were found", are skipped.
func ParseIndexList(output string) []int {
	var ids []int
	seen := map[int]struct{}{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !isDigits(line) {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseSelection parses a comma-separated GPU list such as "0,2,3". Duplicates
// collapse and the result keeps first-seen order. An empty string yields nil.
func ParseSelection(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var ids []int
	seen := map[int]struct{}{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			return nil, services.Wrap(services.ErrConfiguration, "gpu", "parse selection",
				fmt.Sprintf("Invalid GPU id %q in %q", part, value), nil)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "gpu", "parse selection",
			fmt.Sprintf("No GPU ids in %q", value), nil)
	}
	return ids, nil
}

// Resolve picks the worker identities for a run. With no request every
// detected GPU is used. Requested ids that were not detected are rejected
// together in one error.
func Resolve(detected, requested []int) ([]int, error) {
	if len(detected) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "gpu", "resolve", "No GPUs detected", nil)
	}
	if len(requested) == 0 {
		return append([]int(nil), detected...), nil
	}
	available := make(map[int]struct{}, len(detected))
	for _, id := range detected {
		available[id] = struct{}{}
	}
	var invalid []string
	for _, id := range requested {
		if _, ok := available[id]; !ok {
			invalid = append(invalid, strconv.Itoa(id))
		}
	}
	if len(invalid) > 0 {
		avail := make([]string, len(detected))
		for i, id := range detected {
			avail[i] = strconv.Itoa(id)
		}
		return nil, services.Wrap(services.ErrConfiguration, "gpu", "resolve",
			fmt.Sprintf("Invalid GPU IDs: %s (available: %s)", strings.Join(invalid, ","), strings.Join(avail, ",")), nil)
	}
	return append([]int(nil), requested...), nil
}
