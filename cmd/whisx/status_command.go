package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisx/internal/config"
	"whisx/internal/deps"
	"whisx/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check external binaries, directories and GPUs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			statuses := preflight.CheckSystemDeps(cfg)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range dependencyLines(statuses, colorize) {
				fmt.Fprintln(out, line)
			}

			skip := make(map[string]bool, len(statuses))
			for _, s := range statuses {
				skip[s.Name] = true
			}
			results := preflight.RunAll(cmd.Context(), cfg, "")
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Environment", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range preflightLines(results, skip, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%sBackend: %s (model %s, server mode: %s)\n", statusIndent,
				cfg.Transcription.Backend, cfg.Transcription.Model, yesNo(cfg.Transcription.Backend == config.BackendServer))

			if missing := deps.Missing(statuses); len(missing) > 0 {
				return fmt.Errorf("%d required dependencies missing", len(missing))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d environment checks failed", len(failed))
			}
			return nil
		},
	}
}
