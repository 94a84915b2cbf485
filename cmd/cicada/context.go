package main

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"cicada/internal/chanjing"
	"cicada/internal/config"
	"cicada/internal/history"
	"cicada/internal/logging"
	"cicada/internal/node"
	"cicada/internal/progress"
	"cicada/internal/ratelimit"
	"cicada/internal/voicecache"
)

type commandContext struct {
	configFlag    *string
	logLevelFlag  *string
	logFormatFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	envOnce sync.Once
	env     *node.Env
	tokens  *chanjing.TokenManager
	envErr  error
}

func newCommandContext(configFlag, logLevelFlag, logFormatFlag *string) *commandContext {
	return &commandContext{
		configFlag:    configFlag,
		logLevelFlag:  logLevelFlag,
		logFormatFlag: logFormatFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(flagValue(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if level := flagValue(c.logLevelFlag); level != "" {
			cfg.Logging.Level = level
		}
		if format := flagValue(c.logFormatFlag); format != "" {
			cfg.Logging.Format = format
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureEnv wires the node environment once per process: logger, rate
// limiter, API client, token manager, voice cache, and history ledger,
// all driven by the loaded configuration.
func (c *commandContext) ensureEnv() (*node.Env, error) {
	c.envOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.envErr = err
			return
		}

		logger, err := logging.NewWithFile(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: os.Stderr,
		}, cfg.Paths.LogDir, "cicada.log")
		if err != nil {
			c.envErr = err
			return
		}

		client := chanjing.NewClient(chanjing.ClientOptions{
			BaseURL:          cfg.API.BaseURL,
			Limiter:          ratelimit.New(rateIntervals(cfg), logger),
			Logger:           logger,
			RequestTimeout:   cfg.RequestTimeout(),
			RetryAttempts:    cfg.API.RetryAttempts,
			RetryDelay:       cfg.RetryDelay(),
			TransferTimeout:  cfg.TransferTimeout(),
			SyncPollInterval: time.Duration(cfg.Upload.PollIntervalSeconds) * time.Second,
			SyncTimeout:      time.Duration(cfg.Upload.SyncTimeoutSeconds) * time.Second,
		})
		tokens := chanjing.NewTokenManager(chanjing.TokenManagerOptions{
			CredentialsPath: cfg.API.CredentialsPath,
			CachePath:       cfg.TokenCachePath(),
			Client:          client,
			Logger:          logger,
		})
		client.SetTokenSource(tokens)

		env := &node.Env{
			Client: client,
			Config: cfg,
			Logger: logger,
			NewReporter: func(stages ...progress.Stage) *progress.Reporter {
				return progress.New(progress.AutoSink(os.Stderr, logger), logger, stages...)
			},
		}
		if cfg.VoiceCache.Enabled {
			env.Voices = voicecache.NewCache(cfg.VoiceCache.Path, logger)
		}
		if cfg.History.Enabled {
			store, err := history.Open(cfg.History.Path)
			if err != nil {
				c.envErr = fmt.Errorf("open history ledger: %w", err)
				return
			}
			env.History = store
		}

		c.env = env
		c.tokens = tokens
	})
	return c.env, c.envErr
}

func (c *commandContext) tokenManager() (*chanjing.TokenManager, error) {
	if _, err := c.ensureEnv(); err != nil {
		return nil, err
	}
	return c.tokens, nil
}

func rateIntervals(cfg *config.Config) map[ratelimit.Category]time.Duration {
	return map[ratelimit.Category]time.Duration{
		ratelimit.CategoryLipSync:    secondsToDuration(cfg.RateLimits.LipSyncSeconds),
		ratelimit.CategoryVoiceClone: secondsToDuration(cfg.RateLimits.VoiceCloneSeconds),
		ratelimit.CategoryTTS:        secondsToDuration(cfg.RateLimits.TTSSeconds),
		ratelimit.CategoryDefault:    secondsToDuration(cfg.RateLimits.DefaultSeconds),
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
