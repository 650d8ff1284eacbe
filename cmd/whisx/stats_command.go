package main

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"whisx/internal/config"
	"whisx/internal/corpusstats"
	"whisx/internal/durationcache"
	"whisx/internal/scan"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var skipDurations bool

	cmd := &cobra.Command{
		Use:   "stats <dir>",
		Short: "Summarize corpus duration, transcription coverage and languages",
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
			logger := ctx.consoleLogger()

			var prober corpusstats.DurationProber
			if !skipDurations {
				if _, err := exec.LookPath(cfg.FFprobeBinary()); err != nil {
					return fmt.Errorf("ffprobe not found (use --no-durations to skip duration probing): %w", err)
				}
				cache, err := durationcache.Open(cfg.DurationCachePath())
				if err != nil {
					return err
				}
				defer cache.Close()
				prober = durationcache.NewProber(cache, cfg.FFprobeBinary())
			}

			collector := corpusstats.NewCollector(
				scan.NewSource(cfg.Scan, logger),
				prober,
				cfg.Stats.Workers,
				config.Seconds(cfg.Stats.LongFileSeconds),
				logger,
			)
			report, err := collector.Collect(cmd.Context(), root)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(report, prober != nil, cfg.Stats.LongFileSeconds))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipDurations, "no-durations", false, "Skip ffprobe duration measurement")
	return cmd
}

func renderStats(report corpusstats.Report, withDurations bool, longSeconds float64) string {
	pairs := [][2]string{
		{"Audio files", corpusstats.FormatCount(report.Files)},
		{"Transcribed", corpusstats.FormatCount(report.Marked)},
		{"Pending", corpusstats.FormatCount(report.Pending())},
		{"Coverage", fmt.Sprintf("%.1f%%", report.Coverage())},
	}
	if report.Unreadable > 0 {
		pairs = append(pairs, [2]string{"Unreadable dirs", corpusstats.FormatCount(report.Unreadable)})
	}
	if withDurations {
		pairs = append(pairs,
			[2]string{"Total audio", corpusstats.FormatHours(report.TotalDuration)},
			[2]string{"Transcribed audio", corpusstats.FormatHours(report.MarkedDuration)},
			[2]string{fmt.Sprintf("Files over %s", config.Seconds(longSeconds)), corpusstats.FormatCount(len(report.LongFiles))},
		)
		if report.ProbeErrors > 0 {
			pairs = append(pairs, [2]string{"Probe errors", corpusstats.FormatCount(report.ProbeErrors)})
		}
	}
	out := renderPairs("Corpus "+report.Root, pairs)

	if len(report.Languages) > 0 {
		rows := make([][]string, 0, len(report.Languages))
		for _, lang := range report.Languages {
			share := float64(lang.Count) / float64(report.Marked) * 100
			rows = append(rows, []string{lang.Name, lang.Code, corpusstats.FormatCount(lang.Count), fmt.Sprintf("%.1f%%", share)})
		}
		out += "\n" + renderTable([]string{"Language", "Code", "Files", "Share"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight})
	}

	if withDurations && len(report.LongFiles) > 0 {
		limit := len(report.LongFiles)
		if limit > 10 {
			limit = 10
		}
		rows := make([][]string, 0, limit)
		for _, lf := range report.LongFiles[:limit] {
			rows = append(rows, []string{lf.Path, lf.Duration.Round(time.Second).String()})
		}
		out += "\n" + renderTable([]string{"Longest files", "Duration"}, rows, []columnAlignment{alignLeft, alignRight})
		if rest := len(report.LongFiles) - limit; rest > 0 {
			out += "\n  ... and " + strconv.Itoa(rest) + " more"
		}
	}
	return out
}
