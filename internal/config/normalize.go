package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeScan()
	c.normalizeGPUs()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Backend = strings.ToLower(strings.TrimSpace(t.Backend))
	if t.Backend == "" {
		t.Backend = defaultBackend
	}
	t.Model = strings.TrimSpace(t.Model)
	if t.Model == "" {
		t.Model = defaultModel
	}
	t.ComputeType = strings.ToLower(strings.TrimSpace(t.ComputeType))
	if t.ComputeType == "" {
		t.ComputeType = defaultComputeType
	}
	t.Language = strings.ToLower(strings.TrimSpace(t.Language))
	t.Python = strings.TrimSpace(t.Python)
	if t.Python == "" {
		t.Python = defaultPython
	}
	t.UVX = strings.TrimSpace(t.UVX)
	if t.UVX == "" {
		t.UVX = defaultUVX
	}
	t.CUDAIndexURL = strings.TrimSpace(t.CUDAIndexURL)
	t.HFToken = strings.TrimSpace(t.HFToken)
	if t.HFToken == "" {
		if value, ok := os.LookupEnv("HUGGING_FACE_HUB_TOKEN"); ok {
			t.HFToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("HF_TOKEN"); ok {
			t.HFToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeScan() {
	seen := make(map[string]struct{}, len(c.Scan.AudioExtensions))
	exts := make([]string, 0, len(c.Scan.AudioExtensions))
	for _, ext := range c.Scan.AudioExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultAudioExtensions...)
	}
	c.Scan.AudioExtensions = exts

	marker := strings.ToLower(strings.TrimSpace(c.Scan.MarkerExtension))
	if marker == "" {
		marker = defaultMarkerExtension
	}
	if !strings.HasPrefix(marker, ".") {
		marker = "." + marker
	}
	c.Scan.MarkerExtension = marker
}

func (c *Config) normalizeGPUs() {
	c.GPUs.NvidiaSMI = strings.TrimSpace(c.GPUs.NvidiaSMI)
	if c.GPUs.NvidiaSMI == "" {
		c.GPUs.NvidiaSMI = defaultNvidiaSMI
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
