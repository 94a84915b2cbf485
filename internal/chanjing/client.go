package chanjing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

// DefaultBaseURL is the production Chanjing open API endpoint.
const DefaultBaseURL = "https://open-api.chanjing.cc"

const (
	headerToken = "access_token"

	codeOK           = 0
	codeTokenExpired = 10400
	codeTokenInvalid = 10401
)

// TokenSource supplies the access token attached to authenticated requests
// and discards state the remote service has rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ClientOptions configures a Client. Zero values fall back to the
// platform defaults (30s request timeout, 3 attempts, 3s retry delay,
// 120s transfer timeout, 3s/90s sync polling).
type ClientOptions struct {
	BaseURL        string
	HTTPClient     *http.Client
	Limiter        *ratelimit.Limiter
	Logger         *slog.Logger
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration

	// TransferTimeout bounds a single upload or download exchange, which
	// moves far more bytes than a JSON call.
	TransferTimeout time.Duration
	// SyncPollInterval and SyncTimeout govern the post-upload wait for
	// the platform to report the file synced.
	SyncPollInterval time.Duration
	SyncTimeout      time.Duration
}

// Client issues rate-limited JSON calls against the Chanjing open API.
// Transport-level failures (connection resets, timeouts) are retried with
// a fixed delay; HTTP status errors and business errors propagate
// immediately. When the platform reports the access token invalid, the
// call is transparently retried once with a freshly minted token.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *ratelimit.Limiter
	logger         *slog.Logger
	requestTimeout time.Duration
	retryAttempts  int
	retryDelay     time.Duration

	transferTimeout  time.Duration
	syncPollInterval time.Duration
	syncTimeout      time.Duration

	tokens TokenSource

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from the supplied options.
func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	transferTimeout := opts.TransferTimeout
	if transferTimeout <= 0 {
		transferTimeout = 120 * time.Second
	}
	syncPollInterval := opts.SyncPollInterval
	if syncPollInterval <= 0 {
		syncPollInterval = 3 * time.Second
	}
	syncTimeout := opts.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = 90 * time.Second
	}
	return &Client{
		baseURL:          baseURL,
		httpClient:       httpClient,
		limiter:          opts.Limiter,
		logger:           logger,
		requestTimeout:   timeout,
		retryAttempts:    attempts,
		retryDelay:       delay,
		transferTimeout:  transferTimeout,
		syncPollInterval: syncPollInterval,
		syncTimeout:      syncTimeout,
		sleep:            sleepFor,
	}
}

// SetTokenSource wires the token provider used for authenticated calls.
// The token manager itself issues its refresh call through this client,
// so the source is attached after construction.
func (c *Client) SetTokenSource(src TokenSource) {
	c.tokens = src
}

// BaseURL reports the endpoint this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope mirrors the platform's JSON response wrapper.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// apiRequest describes one logical call against the platform.
type apiRequest struct {
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	category  ratelimit.Category
	timeout   time.Duration
	skipAuth  bool
}

// callJSON performs the request, decodes the response envelope, and
// unmarshals the data payload into out when non-nil. An auth-failure code
// triggers exactly one token refresh and replay of the original request.
func (c *Client) callJSON(ctx context.Context, req apiRequest, out any) error {
	authRetried := false
	for {
		token := ""
		if !req.skipAuth {
			if c.tokens == nil {
				return Wrap(ErrConfiguration, req.operation, "no token source configured", nil)
			}
			fetched, err := c.tokens.Token(ctx)
			if err != nil {
				return err
			}
			token = fetched
		}

		raw, err := c.send(ctx, req, token)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return Wrap(ErrTransient, req.operation, "decode response envelope", err)
		}

		if env.Code == codeOK {
			if out == nil || len(env.Data) == 0 {
				return nil
			}
			if err := json.Unmarshal(env.Data, out); err != nil {
				return Wrap(ErrTransient, req.operation, "decode response data", err)
			}
			return nil
		}

		if (env.Code == codeTokenExpired || env.Code == codeTokenInvalid) && !req.skipAuth {
			if !authRetried {
				authRetried = true
				c.logger.Warn("access token rejected, refreshing",
					logging.Int("code", env.Code),
					logging.String("operation", req.operation))
				c.tokens.Invalidate()
				continue
			}
			message := fmt.Sprintf("token rejected again after refresh (code %d): %s; verify the credentials file and obtain new keys at %s", env.Code, env.Msg, keysURL)
			return Wrap(ErrAuth, req.operation, message, nil)
		}

		return Wrap(ErrBusiness, req.operation, fmt.Sprintf("platform returned code %d: %s", env.Code, env.Msg), nil)
	}
}

// send executes the HTTP exchange with rate limiting and transport
// retries, returning the raw response body.
func (c *Client) send(ctx context.Context, req apiRequest, token string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, req.category); err != nil {
		return nil, Wrap(ErrTransient, req.operation, "rate limit wait", err)
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	timeout := req.timeout
	if timeout <= 0 {
		timeout = c.requestTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		var body io.Reader
		if req.body != nil {
			encoded, err := json.Marshal(req.body)
			if err != nil {
				return nil, Wrap(ErrConfiguration, req.operation, "encode request body", err)
			}
			body = bytes.NewReader(encoded)
		}

		httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
		if err != nil {
			return nil, Wrap(ErrConfiguration, req.operation, "build request", err)
		}
		if req.body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			httpReq.Header.Set(headerToken, token)
		}

		raw, status, err := c.doOnce(httpReq, timeout)
		if err == nil {
			if status >= http.StatusBadRequest {
				snippet := strings.TrimSpace(string(raw))
				if len(snippet) > 256 {
					snippet = snippet[:256]
				}
				return nil, Wrap(ErrTransient, req.operation, fmt.Sprintf("HTTP %d: %s", status, snippet), nil)
			}
			return raw, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, Wrap(ErrTransient, req.operation, "request aborted", ctx.Err())
		}
		if !retryableTransport(err) || attempt == c.retryAttempts {
			break
		}
		c.logger.Warn("request failed, retrying",
			logging.String("operation", req.operation),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.retryAttempts),
			logging.Duration("delay", c.retryDelay),
			logging.Error(err))
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			return nil, Wrap(ErrTransient, req.operation, "retry wait", err)
		}
	}

	return nil, Wrap(ErrTransient, req.operation, fmt.Sprintf("gave up after %d attempts", c.retryAttempts), lastErr)
}

// doOnce runs a single HTTP exchange under the given timeout. The client
// copy keeps the timeout covering the full exchange, body read included.
func (c *Client) doOnce(req *http.Request, timeout time.Duration) ([]byte, int, error) {
	client := *c.httpClient
	client.Timeout = timeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

// retryableTransport reports whether the error looks like a connection or
// timeout failure worth retrying. Anything else, HTTP status errors
// included, propagates immediately.
func retryableTransport(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
