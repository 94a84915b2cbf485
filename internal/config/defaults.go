package config

const (
	defaultConfigPath      = "~/.config/cicada/config.toml"
	defaultCredentialsPath = "~/.config/cicada/credentials.json"
	defaultCacheDir        = "~/.cache/cicada"
	defaultOutputDir       = "~/.local/share/cicada/output"
	defaultLogDir          = "~/.local/share/cicada/logs"
	defaultVoiceCachePath  = "~/.cache/cicada/voice_cache.json"
	defaultHistoryPath     = "~/.local/share/cicada/history.db"
	defaultBaseURL         = "https://open-api.chanjing.cc"
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"

	defaultRequestTimeoutSeconds  = 30
	defaultRetryAttempts          = 3
	defaultRetryDelaySeconds      = 3
	defaultUploadSyncSeconds      = 90
	defaultUploadPollSeconds      = 3
	defaultTransferTimeoutSeconds = 120
	defaultLipSyncTimeoutSeconds  = 1800
	defaultCloneTimeoutSeconds    = 600
	defaultSpeechTimeoutSeconds   = 600
	defaultFailureBudget          = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		API: API{
			BaseURL:               defaultBaseURL,
			CredentialsPath:       defaultCredentialsPath,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			RetryAttempts:         defaultRetryAttempts,
			RetryDelaySeconds:     defaultRetryDelaySeconds,
		},
		RateLimits: RateLimits{
			LipSyncSeconds:    6,
			VoiceCloneSeconds: 6,
			TTSSeconds:        0.5,
			DefaultSeconds:    1,
		},
		Upload: Upload{
			SyncTimeoutSeconds:     defaultUploadSyncSeconds,
			PollIntervalSeconds:    defaultUploadPollSeconds,
			TransferTimeoutSeconds: defaultTransferTimeoutSeconds,
		},
		Jobs: Jobs{
			LipSyncTimeoutSeconds:    defaultLipSyncTimeoutSeconds,
			VoiceCloneTimeoutSeconds: defaultCloneTimeoutSeconds,
			SpeechTimeoutSeconds:     defaultSpeechTimeoutSeconds,
			FailureBudget:            defaultFailureBudget,
		},
		VoiceCache: VoiceCache{
			Enabled: true,
			Path:    defaultVoiceCachePath,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Tools: Tools{
			FFmpeg:  "ffmpeg",
			FFprobe: "ffprobe",
		},
	}
}
