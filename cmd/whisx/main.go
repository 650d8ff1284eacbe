package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"whisx/internal/services"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "whisx:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps configuration mistakes to 2 and everything else to 1.
func exitCode(err error) int {
	if errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrValidation) {
		return 2
	}
	return 1
}
