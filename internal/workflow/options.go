package workflow

import (
	"time"

	"whisx/internal/config"
	"whisx/internal/queue"
)

// Options holds the scheduler timings and limits.
type Options struct {
	MaxRetries           int
	EmptyPollInterval    time.Duration
	MaxEmptyPolls        int
	StallThreshold       time.Duration
	StallCheckInterval   time.Duration
	ProgressPollInterval time.Duration
	ShutdownGrace        time.Duration
	// MaxRestarts bounds stall restarts; 0 means unlimited.
	MaxRestarts     int
	MarkerExtension string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	cfg := config.Default()
	return OptionsFrom(&cfg)
}

// OptionsFrom converts loaded configuration into scheduler options.
func OptionsFrom(cfg *config.Config) Options {
	s := cfg.Scheduler
	return Options{
		MaxRetries:           s.MaxRetries,
		EmptyPollInterval:    config.Seconds(s.EmptyPollInterval),
		MaxEmptyPolls:        s.MaxEmptyPolls,
		StallThreshold:       config.Seconds(s.StallThreshold),
		StallCheckInterval:   config.Seconds(s.StallCheckInterval),
		ProgressPollInterval: config.Seconds(s.ProgressPollInterval),
		ShutdownGrace:        config.Seconds(s.ShutdownGrace),
		MaxRestarts:          s.MaxRestarts,
		MarkerExtension:      cfg.Scan.MarkerExtension,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = queue.DefaultMaxRetries
	}
	if o.EmptyPollInterval <= 0 {
		o.EmptyPollInterval = time.Second
	}
	if o.MaxEmptyPolls < 0 {
		o.MaxEmptyPolls = 0
	}
	if o.StallThreshold <= 0 {
		o.StallThreshold = 10 * time.Second
	}
	if o.StallCheckInterval <= 0 {
		o.StallCheckInterval = time.Second
	}
	if o.ProgressPollInterval <= 0 {
		o.ProgressPollInterval = time.Second
	}
	if o.ShutdownGrace < 0 {
		o.ShutdownGrace = 0
	}
	return o
}
