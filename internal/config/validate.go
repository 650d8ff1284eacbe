package config

import (
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateStats(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	if listen := strings.TrimSpace(c.Metrics.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			return fmt.Errorf("metrics.listen must be host:port: %w", err)
		}
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateScheduler() error {
	s := c.Scheduler
	if s.MaxRetries < 0 {
		return errors.New("scheduler.max_retries must be >= 0")
	}
	if s.EmptyPollInterval <= 0 {
		return errors.New("scheduler.empty_poll_interval must be positive")
	}
	if s.MaxEmptyPolls < 0 {
		return errors.New("scheduler.max_empty_polls must be >= 0")
	}
	if s.StallThreshold <= 0 {
		return errors.New("scheduler.stall_threshold must be positive")
	}
	if s.StallCheckInterval <= 0 {
		return errors.New("scheduler.stall_check_interval must be positive")
	}
	if s.ProgressPollInterval <= 0 {
		return errors.New("scheduler.progress_poll_interval must be positive")
	}
	if s.ShutdownGrace < 0 {
		return errors.New("scheduler.shutdown_grace must be >= 0")
	}
	if s.MaxRestarts < 0 {
		return errors.New("scheduler.max_restarts must be >= 0")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	switch t.Backend {
	case BackendServer, BackendCLI:
	default:
		return fmt.Errorf("transcription.backend: unsupported value %q (want %q or %q)", t.Backend, BackendServer, BackendCLI)
	}
	if t.BatchSize <= 0 {
		return errors.New("transcription.batch_size must be positive")
	}
	if t.ReadyTimeout <= 0 {
		return errors.New("transcription.ready_timeout must be positive")
	}
	return nil
}

func (c *Config) validateScan() error {
	if slices.Contains(c.Scan.AudioExtensions, c.Scan.MarkerExtension) {
		return fmt.Errorf("scan.marker_extension %q must not also be an audio extension", c.Scan.MarkerExtension)
	}
	return nil
}

func (c *Config) validateStats() error {
	if c.Stats.Workers <= 0 {
		return errors.New("stats.workers must be positive")
	}
	if c.Stats.LongFileSeconds < 0 {
		return errors.New("stats.long_file_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
