package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir  string `toml:"cache_dir"`
	OutputDir string `toml:"output_dir"`
	TempDir   string `toml:"temp_dir"`
	LogDir    string `toml:"log_dir"`
}

// API contains connection settings for the Chanjing open API.
type API struct {
	BaseURL               string `toml:"base_url"`
	CredentialsPath       string `toml:"credentials_path"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	RetryAttempts         int    `toml:"retry_attempts"`
	RetryDelaySeconds     int    `toml:"retry_delay_seconds"`
}

// RateLimits contains per-category minimum request spacing in seconds.
type RateLimits struct {
	LipSyncSeconds    float64 `toml:"lip_sync_seconds"`
	VoiceCloneSeconds float64 `toml:"voice_clone_seconds"`
	TTSSeconds        float64 `toml:"tts_seconds"`
	DefaultSeconds    float64 `toml:"default_seconds"`
}

// Upload contains two-step upload behavior.
type Upload struct {
	SyncTimeoutSeconds     int `toml:"sync_timeout_seconds"`
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	TransferTimeoutSeconds int `toml:"transfer_timeout_seconds"`
}

// Jobs contains wall-clock budgets for the asynchronous job pollers.
type Jobs struct {
	LipSyncTimeoutSeconds    int `toml:"lip_sync_timeout_seconds"`
	VoiceCloneTimeoutSeconds int `toml:"voice_clone_timeout_seconds"`
	SpeechTimeoutSeconds     int `toml:"speech_timeout_seconds"`
	FailureBudget            int `toml:"failure_budget"`
}

// VoiceCache contains configuration for the voice clone result cache.
type VoiceCache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// History contains configuration for the invocation ledger.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Tools names external binaries used for local media inspection.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Config encapsulates all settings for cicada.
//
// Sections by subsystem:
//   - Paths: cache, output, temp, and log directories
//   - API: base URL, credential file, retry and timeout behavior
//   - RateLimits: per-category request spacing
//   - Upload: post-upload sync polling budgets
//   - Jobs: per-job wall-clock budgets and the poll failure budget
//   - VoiceCache: content-addressed voice clone cache
//   - History: invocation ledger database
//   - Logging: log format and level
//   - Tools: ffmpeg/ffprobe binaries
type Config struct {
	Paths      Paths      `toml:"paths"`
	API        API        `toml:"api"`
	RateLimits RateLimits `toml:"rate_limits"`
	Upload     Upload     `toml:"upload"`
	Jobs       Jobs       `toml:"jobs"`
	VoiceCache VoiceCache `toml:"voice_cache"`
	History    History    `toml:"history"`
	Logging    Logging    `toml:"logging"`
	Tools      Tools      `toml:"tools"`
}

// DefaultConfigPath returns the absolute path to the default
// configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. When no file exists
// the defaults are returned with exists=false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cicada.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories node runs depend on.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.TempDir) != "" {
		if err := os.MkdirAll(c.Paths.TempDir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", c.Paths.TempDir, err)
		}
	}
	return nil
}

// TokenCachePath returns the location of the persisted access token.
func (c *Config) TokenCachePath() string {
	return filepath.Join(c.Paths.CacheDir, "token.json")
}

// RequestTimeout returns the default per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSeconds) * time.Second
}

// RetryDelay returns the pause between transport-level retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.API.RetryDelaySeconds) * time.Second
}

// TransferTimeout returns the timeout applied to upload PUT requests.
func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.Upload.TransferTimeoutSeconds) * time.Second
}

// FFmpegBinary returns the ffmpeg executable name.
func (c *Config) FFmpegBinary() string {
	if strings.TrimSpace(c.Tools.FFmpeg) == "" {
		return "ffmpeg"
	}
	return c.Tools.FFmpeg
}

// FFprobeBinary returns the ffprobe executable name.
func (c *Config) FFprobeBinary() string {
	if strings.TrimSpace(c.Tools.FFprobe) == "" {
		return "ffprobe"
	}
	return c.Tools.FFprobe
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
