package config

const (
	defaultStagingDir     = "~/.local/share/murmur/staging"
	defaultTranscriptsDir = "~/.local/share/murmur/transcripts"
	defaultLogDir         = "~/.local/share/murmur/logs"
	defaultAPIBind        = "127.0.0.1:7817"

	defaultDriveRequestTimeout = 60

	defaultModel               = "large-v3"
	defaultProbeTimeoutSeconds = 5

	defaultAnalysisBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultAnalysisModel          = "anthropic/claude-sonnet-4"
	defaultAnalysisTimeoutSeconds = 120

	defaultNotifyRequestTimeout = 10

	defaultPollInterval          = 900
	defaultMaxBatchItems         = 10
	defaultStepConcurrency       = 2
	defaultClaimStaleMinutes     = 60
	defaultDownloadTimeoutSecs   = 300
	defaultTranscribeTimeoutSecs = 1800
	defaultHandoffTimeoutSecs    = 300

	defaultCompletedRetention = 500

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:     defaultStagingDir,
			TranscriptsDir: defaultTranscriptsDir,
			LogDir:         defaultLogDir,
			APIBind:        defaultAPIBind,
		},
		Drive: Drive{
			RequestTimeout: defaultDriveRequestTimeout,
		},
		Transcription: Transcription{
			Model:               defaultModel,
			Diarization:         true,
			ProbeTimeoutSeconds: defaultProbeTimeoutSeconds,
			ModalEnabled:        true,
			LocalEnabled:        true,
		},
		Analysis: Analysis{
			BaseURL:        defaultAnalysisBaseURL,
			Model:          defaultAnalysisModel,
			TimeoutSeconds: defaultAnalysisTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completions:    true,
			Errors:         true,
		},
		Workflow: Workflow{
			PollInterval:          defaultPollInterval,
			MaxBatchItems:         defaultMaxBatchItems,
			StepConcurrency:       defaultStepConcurrency,
			ClaimStaleMinutes:     defaultClaimStaleMinutes,
			DownloadTimeoutSecs:   defaultDownloadTimeoutSecs,
			TranscribeTimeoutSecs: defaultTranscribeTimeoutSecs,
			HandoffTimeoutSecs:    defaultHandoffTimeoutSecs,
		},
		State: State{
			CompletedRetention: defaultCompletedRetention,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
