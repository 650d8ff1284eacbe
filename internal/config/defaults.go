package config

const (
	defaultConfigPath             = "~/.config/whisx/config.toml"
	defaultLogDir                 = "~/.local/share/whisx/logs"
	defaultStateDir               = "~/.local/share/whisx/state"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultMaxRetries             = 3
	defaultEmptyPollInterval      = 1
	defaultMaxEmptyPolls          = 3
	defaultStallThreshold         = 10
	defaultStallCheckInterval     = 1
	defaultProgressPollInterval   = 1
	defaultShutdownGrace          = 5
	defaultBackend                = BackendServer
	defaultModel                  = "large-v3-turbo"
	defaultComputeType            = "float16"
	defaultBatchSize              = 16
	defaultPython                 = "python3"
	defaultUVX                    = "uvx"
	defaultReadyTimeout           = 600
	defaultCUDAIndexURL           = "https://download.pytorch.org/whl/cu128"
	defaultMarkerExtension        = ".json"
	defaultNvidiaSMI              = "nvidia-smi"
	defaultStatsWorkers           = 8
	defaultStatsLongFileSeconds   = 30
	defaultNtfyRequestTimeout     = 10
	defaultTranscriptionLanguage  = ""
	defaultTranscriptionAlignment = false
)

// Transcription backends.
const (
	BackendServer = "server"
	BackendCLI    = "cli"
)

var defaultAudioExtensions = []string{
	".mp3", ".wav", ".flac", ".m4a", ".opus", ".ogg", ".wma", ".aac", ".webm", ".weba",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Scheduler: Scheduler{
			MaxRetries:           defaultMaxRetries,
			EmptyPollInterval:    defaultEmptyPollInterval,
			MaxEmptyPolls:        defaultMaxEmptyPolls,
			StallThreshold:       defaultStallThreshold,
			StallCheckInterval:   defaultStallCheckInterval,
			ProgressPollInterval: defaultProgressPollInterval,
			ShutdownGrace:        defaultShutdownGrace,
		},
		Transcription: Transcription{
			Backend:      defaultBackend,
			Model:        defaultModel,
			ComputeType:  defaultComputeType,
			BatchSize:    defaultBatchSize,
			Align:        defaultTranscriptionAlignment,
			Language:     defaultTranscriptionLanguage,
			Python:       defaultPython,
			UVX:          defaultUVX,
			ReadyTimeout: defaultReadyTimeout,
			CUDAIndexURL: defaultCUDAIndexURL,
		},
		Scan: Scan{
			AudioExtensions: append([]string(nil), defaultAudioExtensions...),
			MarkerExtension: defaultMarkerExtension,
		},
		GPUs: GPUs{
			NvidiaSMI: defaultNvidiaSMI,
		},
		Stats: Stats{
			Workers:         defaultStatsWorkers,
			LongFileSeconds: defaultStatsLongFileSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
