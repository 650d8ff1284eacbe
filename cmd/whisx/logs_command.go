package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"whisx/internal/logging"
	"whisx/internal/runlog"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		runID  string
		raw    bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log of the latest (or a given) run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var path string
			if runID != "" {
				path, err = runlog.Find(cfg.Paths.LogDir, runID)
			} else {
				path, err = runlog.Latest(cfg.Paths.LogDir)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			level := ctx.logLevel()
			if level == "" {
				level = "debug"
			}
			console, err := logging.New(logging.Options{Level: level, Format: "console", Writer: out})
			if err != nil {
				return err
			}
			emit := func(line string) {
				if raw {
					fmt.Fprintln(out, line)
					return
				}
				if err := runlog.Replay(cmd.Context(), console.Handler(), line); err != nil {
					fmt.Fprintln(out, line)
				}
			}

			tail, offset, err := runlog.Tail(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				return nil
			}
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			sigCtx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runlog.Follow(sigCtx, path, offset, 250*time.Millisecond, emit)
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new lines")
	cmd.Flags().StringVar(&runID, "run", "", "Run id (or prefix) to show instead of the latest run")
	cmd.Flags().BoolVar(&raw, "json", false, "Print raw JSON records")
	return cmd
}
