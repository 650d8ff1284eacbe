package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"whisx/internal/scan"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Report pending and already transcribed files without processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := resolveRoot(args[0])
			if err != nil {
				return err
			}
			source := scan.NewSource(cfg.Scan, ctx.consoleLogger())
			roster, err := source.Roster(cmd.Context(), root)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Root", "Audio files", "Pending", "Transcribed", "Unreadable dirs"},
				[][]string{{
					root,
					fmt.Sprint(roster.Total()),
					fmt.Sprint(len(roster.Paths)),
					fmt.Sprint(roster.Marked),
					fmt.Sprint(roster.Unreadable),
				}},
				[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			if list {
				for _, p := range roster.Paths {
					fmt.Fprintln(out, p)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Print every pending file")
	return cmd
}
