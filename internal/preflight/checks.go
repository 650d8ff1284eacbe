package preflight

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"whisx/internal/config"
	"whisx/internal/deps"
	"whisx/internal/gpu"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the external binaries required by cfg. Both
// `whisx run` and `whisx status` use it so the requirement list lives in one
// place.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

// CheckGPUs runs GPU discovery with a short timeout.
func CheckGPUs(ctx context.Context, nvidiaSMI string) Result {
	const name = "GPUs"

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ids, err := gpu.Detect(checkCtx, nvidiaSMI)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(ids) == 0 {
		return Result{Name: name, Detail: "no GPUs detected"}
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = strconv.Itoa(id)
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d detected (%s)", len(ids), strings.Join(labels, ","))}
}
