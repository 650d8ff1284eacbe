package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"whisx/internal/gpu"
)

func newGPUsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "gpus",
		Short: "List the GPU ids nvidia-smi reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			detectCtx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			ids, err := gpu.Detect(detectCtx, cfg.GPUs.NvidiaSMI)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No GPUs detected")
				return nil
			}
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{fmt.Sprint(id), fmt.Sprintf("CUDA_VISIBLE_DEVICES=%d", id)})
			}
			fmt.Fprintln(out, renderTable([]string{"GPU", "Worker environment"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}
}
