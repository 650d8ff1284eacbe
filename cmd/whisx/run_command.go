package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"whisx/internal/config"
	"whisx/internal/durationcache"
	"whisx/internal/gpu"
	"whisx/internal/logging"
	"whisx/internal/metrics"
	"whisx/internal/notifications"
	"whisx/internal/preflight"
	"whisx/internal/runlock"
	"whisx/internal/runlog"
	"whisx/internal/scan"
	"whisx/internal/services"
	"whisx/internal/services/whisperx"
	"whisx/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var gpusFlag string

	cmd := &cobra.Command{
		Use:     "run <dir>",
		Aliases: []string{"transcribe"},
		Short:   "Transcribe every audio file under dir that has no result yet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runTranscription(cmd.Context(), cfg, args[0], gpusFlag, ctx.logLevel(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&gpusFlag, "gpus", "", "Comma-separated GPU ids to use (default: all detected)")
	return cmd
}

func runTranscription(parent context.Context, cfg *config.Config, dir, gpusFlag, logLevel string, out io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	root, err := resolveRoot(dir)
	if err != nil {
		return err
	}
	ids, err := selectGPUs(parent, cfg, gpusFlag)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := uuid.NewString()
	runLog := runlog.Path(cfg.Paths.LogDir, time.Now(), runID)
	base, err := logging.NewFromConfig(cfg, logLevel, runLog)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	// The supervisor derives run_id from its context; everything else logs
	// through logger.
	logger := base.With(logging.String(logging.FieldRunID, runID))
	logger.Info("starting run",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("root", root),
		logging.String("gpus", joinInts(ids)),
		logging.String("backend", cfg.Transcription.Backend),
		logging.String("model", cfg.Transcription.Model),
		logging.String("run_log", runLog),
	)

	if failed := preflight.Failed(preflight.RunAll(parent, cfg, root)); len(failed) > 0 {
		parts := make([]string, 0, len(failed))
		for _, f := range failed {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Detail))
		}
		return services.Wrap(services.ErrConfiguration, "run", "preflight", "Preflight checks failed: "+strings.Join(parts, "; "), nil)
	}

	lock, err := runlock.Acquire(cfg.LockDir(), root)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	prober, closeProber := openProber(cfg, logger)
	defer closeProber()

	engine, err := whisperx.NewEngine(whisperx.ConfigFrom(cfg), logger)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "run", "engine", "", err)
	}

	notifier := notifications.NewService(cfg)
	source := scan.NewSource(cfg.Scan, logger)
	sup := workflow.NewSupervisor(source, engine, prober, ids, workflow.OptionsFrom(cfg), base)
	sup.SetRunID(runID)
	sup.SetNotifier(notifier)
	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		m := metrics.New()
		srv, err := metrics.Serve(listen, m.Handler(), logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Close(closeCtx)
		}()
		sup.SetRecorder(m)
	}

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := sup.Run(sigCtx, root)
	notifyOutcome(parent, notifier, logger, root, result, runErr)
	if len(result.Generations) > 0 {
		fmt.Fprintln(out, renderRunSummary(result, ids))
		if failed := result.Final().FailedPaths; len(failed) > 0 {
			fmt.Fprintln(out, "Failed files:")
			for _, p := range failed {
				fmt.Fprintf(out, "  %s\n", p)
			}
		}
	} else if runErr == nil {
		fmt.Fprintf(out, "No files to process (%d already transcribed)\n", result.Marked)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Info("run cancelled", logging.String(logging.FieldEventType, "run_cancelled"))
		}
		return runErr
	}
	return nil
}

// notifyOutcome pushes the run result. Notification failures are logged only.
func notifyOutcome(ctx context.Context, notifier notifications.Service, logger *slog.Logger, root string, result workflow.Result, runErr error) {
	var err error
	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		return
	case runErr != nil:
		err = notifier.NotifyError(ctx, runErr, "run "+root)
	case len(result.Generations) == 0:
		return
	default:
		totals := result.Totals()
		err = notifier.NotifyRunCompleted(ctx, notifications.RunReport{
			Root:      root,
			Succeeded: totals.Succeeded,
			Failed:    totals.Failed,
			Restarts:  result.Restarts,
			Elapsed:   totals.Elapsed,
		})
	}
	if err != nil {
		logger.Warn("notification failed", logging.Error(err))
	}
}

func resolveRoot(dir string) (string, error) {
	expanded, err := config.ExpandPath(strings.TrimSpace(dir))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "run", "resolve dir", "", err)
	}
	root, err := filepath.Abs(expanded)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "run", "resolve dir", "", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "run", "stat dir", "Input directory does not exist: "+root, err)
	}
	if !info.IsDir() {
		return "", services.Wrap(services.ErrConfiguration, "run", "stat dir", "Input path is not a directory: "+root, nil)
	}
	return root, nil
}

// selectGPUs validates --gpus against what nvidia-smi reports.
func selectGPUs(ctx context.Context, cfg *config.Config, flag string) ([]int, error) {
	requested, err := gpu.ParseSelection(flag)
	if err != nil {
		return nil, err
	}
	detectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	detected, err := gpu.Detect(detectCtx, cfg.GPUs.NvidiaSMI)
	if err != nil {
		return nil, err
	}
	return gpu.Resolve(detected, requested)
}

// openProber returns a cached ffprobe prober, or nil when ffprobe is not
// installed. Real-time factors are then omitted from the logs.
func openProber(cfg *config.Config, logger *slog.Logger) (workflow.DurationProber, func()) {
	noop := func() {}
	if _, err := exec.LookPath(cfg.FFprobeBinary()); err != nil {
		return nil, noop
	}
	cache, err := durationcache.Open(cfg.DurationCachePath())
	if err != nil {
		logger.Warn("duration cache unavailable, probing without cache", logging.Error(err))
		return durationcache.NewProber(nil, cfg.FFprobeBinary()), noop
	}
	return durationcache.NewProber(cache, cfg.FFprobeBinary()), func() { _ = cache.Close() }
}

func renderRunSummary(result workflow.Result, ids []int) string {
	totals := result.Totals()
	final := result.Final()
	pairs := [][2]string{
		{"Files scheduled", strconv.Itoa(result.Generations[0].Total)},
		{"Already transcribed", strconv.Itoa(result.Marked)},
		{"Succeeded", strconv.Itoa(totals.Succeeded)},
		{"Skipped", strconv.Itoa(totals.Skipped)},
		{"Failed", strconv.Itoa(final.Failed)},
		{"GPUs", joinInts(ids)},
		{"Restarts", strconv.Itoa(result.Restarts)},
		{"Wall time", totals.Elapsed.Round(time.Second).String()},
		{"GPU time", totals.ProcessingTime.Round(time.Second).String()},
	}
	return renderPairs("Run summary", pairs)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
