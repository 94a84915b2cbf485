package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAPI(); err != nil {
		return err
	}
	c.normalizeRateLimits()
	c.normalizeBudgets()
	if err := c.normalizeStores(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TempDir) != "" {
		if c.Paths.TempDir, err = expandPath(c.Paths.TempDir); err != nil {
			return fmt.Errorf("paths.temp_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeAPI() error {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(c.API.CredentialsPath) == "" {
		c.API.CredentialsPath = defaultCredentialsPath
	}
	var err error
	if c.API.CredentialsPath, err = expandPath(c.API.CredentialsPath); err != nil {
		return fmt.Errorf("api.credentials_path: %w", err)
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		c.API.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.API.RetryAttempts <= 0 {
		c.API.RetryAttempts = defaultRetryAttempts
	}
	if c.API.RetryDelaySeconds < 0 {
		c.API.RetryDelaySeconds = defaultRetryDelaySeconds
	}
	return nil
}

func (c *Config) normalizeRateLimits() {
	defaults := Default().RateLimits
	if c.RateLimits.LipSyncSeconds < 0 {
		c.RateLimits.LipSyncSeconds = defaults.LipSyncSeconds
	}
	if c.RateLimits.VoiceCloneSeconds < 0 {
		c.RateLimits.VoiceCloneSeconds = defaults.VoiceCloneSeconds
	}
	if c.RateLimits.TTSSeconds < 0 {
		c.RateLimits.TTSSeconds = defaults.TTSSeconds
	}
	if c.RateLimits.DefaultSeconds < 0 {
		c.RateLimits.DefaultSeconds = defaults.DefaultSeconds
	}
}

func (c *Config) normalizeBudgets() {
	if c.Upload.SyncTimeoutSeconds <= 0 {
		c.Upload.SyncTimeoutSeconds = defaultUploadSyncSeconds
	}
	if c.Upload.PollIntervalSeconds <= 0 {
		c.Upload.PollIntervalSeconds = defaultUploadPollSeconds
	}
	if c.Upload.TransferTimeoutSeconds <= 0 {
		c.Upload.TransferTimeoutSeconds = defaultTransferTimeoutSeconds
	}
	if c.Jobs.LipSyncTimeoutSeconds <= 0 {
		c.Jobs.LipSyncTimeoutSeconds = defaultLipSyncTimeoutSeconds
	}
	if c.Jobs.VoiceCloneTimeoutSeconds <= 0 {
		c.Jobs.VoiceCloneTimeoutSeconds = defaultCloneTimeoutSeconds
	}
	if c.Jobs.SpeechTimeoutSeconds <= 0 {
		c.Jobs.SpeechTimeoutSeconds = defaultSpeechTimeoutSeconds
	}
	if c.Jobs.FailureBudget <= 0 {
		c.Jobs.FailureBudget = defaultFailureBudget
	}
}

func (c *Config) normalizeStores() error {
	var err error
	if strings.TrimSpace(c.VoiceCache.Path) == "" {
		c.VoiceCache.Path = defaultVoiceCachePath
	}
	if c.VoiceCache.Path, err = expandPath(c.VoiceCache.Path); err != nil {
		return fmt.Errorf("voice_cache.path: %w", err)
	}
	if strings.TrimSpace(c.History.Path) == "" {
		c.History.Path = defaultHistoryPath
	}
	if c.History.Path, err = expandPath(c.History.Path); err != nil {
		return fmt.Errorf("history.path: %w", err)
	}
	return nil
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
