package chanjing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"cicada/internal/config"
	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

const (
	// tokenLifetime is the validity window the platform grants each token.
	tokenLifetime = 24 * time.Hour
	// tokenEarlyExpiry refreshes tokens this long before their nominal
	// expiry so an in-flight job never straddles the boundary.
	tokenEarlyExpiry = 5 * time.Minute
)

// tokenCache is the persisted token file layout. ExpireTime is unix
// seconds; ConfigHash is the credential fingerprint the token was
// issued under.
type tokenCache struct {
	AccessToken string  `json:"access_token"`
	ExpireTime  float64 `json:"expire_time"`
	ConfigHash  string  `json:"config_hash"`
}

// TokenManagerOptions configures a TokenManager.
type TokenManagerOptions struct {
	// CredentialsPath locates the credentials JSON file. Reloaded on
	// every token request so external edits are picked up immediately.
	CredentialsPath string
	// CachePath locates the persisted token cache. Empty disables
	// persistence.
	CachePath string
	// Client issues the refresh call. Required.
	Client *Client
	Logger *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// TokenManager owns the access token lifecycle: it reloads credentials on
// every request, invalidates tokens minted under stale credentials,
// serves fresh tokens from memory or the on-disk cache, and refreshes
// through the platform's authentication endpoint otherwise.
type TokenManager struct {
	credentialsPath string
	cachePath       string
	client          *Client
	logger          *slog.Logger
	now             func() time.Time

	mu          sync.Mutex
	token       string
	expiresAt   time.Time
	fingerprint string
}

// NewTokenManager builds a TokenManager from the supplied options.
func NewTokenManager(opts TokenManagerOptions) *TokenManager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		credentialsPath: opts.CredentialsPath,
		cachePath:       opts.CachePath,
		client:          opts.Client,
		logger:          logger,
		now:             now,
	}
}

var _ TokenSource = (*TokenManager)(nil)

// Token returns a valid access token, refreshing when the cached one is
// missing, within five minutes of expiry, or was minted under credentials
// that no longer match the credentials file.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := config.LoadCredentials(m.credentialsPath)
	if err != nil {
		return "", Wrap(ErrConfiguration, "load credentials", "", err)
	}
	fingerprint := creds.Fingerprint()

	if m.token != "" && m.fingerprint != fingerprint {
		m.logger.Info("credentials changed, discarding cached token")
		m.clearLocked()
	}

	if m.token != "" && m.freshAt(m.expiresAt) {
		return m.token, nil
	}

	if m.token == "" {
		if cached, ok := m.readCacheFile(); ok && cached.ConfigHash == fingerprint {
			expiresAt := unixFloatTime(cached.ExpireTime)
			if cached.AccessToken != "" && m.freshAt(expiresAt) {
				m.token = cached.AccessToken
				m.expiresAt = expiresAt
				m.fingerprint = cached.ConfigHash
				m.logger.Debug("using persisted access token",
					logging.String("expires_at", expiresAt.Format(time.RFC3339)))
				return m.token, nil
			}
		}
	}

	if err := m.refreshLocked(ctx, creds, fingerprint); err != nil {
		return "", err
	}
	return m.token, nil
}

// Invalidate discards the cached token in memory and on disk so the next
// Token call performs a full refresh. Called when the platform rejects
// the token mid-flight.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	m.removeCacheFile()
}

// Refresh forces a new token regardless of cache state and returns it.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := config.LoadCredentials(m.credentialsPath)
	if err != nil {
		return "", Wrap(ErrConfiguration, "load credentials", "", err)
	}
	if err := m.refreshLocked(ctx, creds, creds.Fingerprint()); err != nil {
		return "", err
	}
	return m.token, nil
}

// Cached reports the current token and its expiry without triggering a
// refresh. The boolean is false when no usable token is cached.
func (m *TokenManager) Cached() (string, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" {
		return m.token, m.expiresAt, true
	}
	cached, ok := m.readCacheFile()
	if !ok || cached.AccessToken == "" {
		return "", time.Time{}, false
	}
	return cached.AccessToken, unixFloatTime(cached.ExpireTime), true
}

// ClearCache removes all cached token state, memory and disk.
func (m *TokenManager) ClearCache() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	if m.cachePath == "" {
		return nil
	}
	if err := os.Remove(m.cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token cache: %w", err)
	}
	return nil
}

func (m *TokenManager) clearLocked() {
	m.token = ""
	m.expiresAt = time.Time{}
	m.fingerprint = ""
}

func (m *TokenManager) freshAt(expiresAt time.Time) bool {
	return m.now().Before(expiresAt.Add(-tokenEarlyExpiry))
}

// refreshLocked fetches a new token from the authentication endpoint. The
// call skips auth handling so a rejected refresh cannot recurse into
// another refresh.
func (m *TokenManager) refreshLocked(ctx context.Context, creds config.Credentials, fingerprint string) error {
	if m.client == nil {
		return Wrap(ErrConfiguration, "refresh token", "no API client configured", nil)
	}

	m.logger.Info("requesting access token")
	var payload struct {
		AccessToken string `json:"access_token"`
	}
	err := m.client.callJSON(ctx, apiRequest{
		operation: "refresh token",
		method:    http.MethodPost,
		path:      "/open/v1/access_token",
		body: map[string]string{
			"app_id":     creds.AppID,
			"secret_key": creds.SecretKey,
		},
		category: ratelimit.CategoryDefault,
		skipAuth: true,
	}, &payload)
	if err != nil {
		return err
	}
	if payload.AccessToken == "" {
		return Wrap(ErrAuth, "refresh token", fmt.Sprintf("platform returned an empty access token; verify app_id and secret_key at %s", keysURL), nil)
	}

	m.token = payload.AccessToken
	m.expiresAt = m.now().Add(tokenLifetime)
	m.fingerprint = fingerprint
	m.writeCacheFile()
	m.logger.Info("access token refreshed",
		logging.String("expires_at", m.expiresAt.Format(time.RFC3339)))
	return nil
}

func (m *TokenManager) readCacheFile() (tokenCache, bool) {
	if m.cachePath == "" {
		return tokenCache{}, false
	}
	data, err := os.ReadFile(m.cachePath)
	if err != nil {
		return tokenCache{}, false
	}
	var cached tokenCache
	if err := json.Unmarshal(data, &cached); err != nil {
		m.logger.Warn("token cache unreadable, ignoring", logging.Error(err))
		return tokenCache{}, false
	}
	return cached, true
}

// writeCacheFile persists the current token best-effort. Failures degrade
// to a warning so a read-only cache directory never blocks API calls.
func (m *TokenManager) writeCacheFile() {
	if m.cachePath == "" {
		return
	}
	cached := tokenCache{
		AccessToken: m.token,
		ExpireTime:  float64(m.expiresAt.UnixMilli()) / 1000.0,
		ConfigHash:  m.fingerprint,
	}
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		m.logger.Warn("encode token cache failed", logging.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.cachePath), 0o755); err != nil {
		m.logger.Warn("create token cache directory failed", logging.Error(err))
		return
	}

	lock := flock.New(m.cachePath + ".lock")
	if err := lock.Lock(); err != nil {
		m.logger.Warn("lock token cache failed", logging.Error(err))
		return
	}
	defer func() {
		_ = lock.Unlock()
	}()

	tmp := m.cachePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		m.logger.Warn("write token cache failed", logging.Error(err))
		return
	}
	if err := os.Rename(tmp, m.cachePath); err != nil {
		m.logger.Warn("replace token cache failed", logging.Error(err))
	}
}

func (m *TokenManager) removeCacheFile() {
	if m.cachePath == "" {
		return
	}
	if err := os.Remove(m.cachePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("remove token cache failed", logging.Error(err))
	}
}

func unixFloatTime(seconds float64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(seconds * 1000))
}
