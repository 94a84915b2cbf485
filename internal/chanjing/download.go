package chanjing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

// downloadTimeout bounds one full result download. Results live on a CDN
// and can be large, so this is looser than the JSON request timeout.
const downloadTimeout = 5 * time.Minute

var knownMediaExts = []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".mp4"}

// Download streams a result URL into dir under a fresh timestamped
// filename, reporting progress at 20-point steps. The extension is taken
// from the URL path when recognized, defaultExt otherwise. A partial file
// is removed when the transfer fails.
func (c *Client) Download(ctx context.Context, rawURL, dir, prefix, defaultExt string, fn ProgressFunc) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", Wrap(ErrBusiness, "download result", "empty result URL", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Wrap(ErrConfiguration, "download result", "create output directory", err)
	}

	target := uniquePath(dir, prefix, extFromURL(rawURL, defaultExt))
	c.logger.Info("downloading result",
		logging.String("url", rawURL),
		logging.String("path", target))

	resp, err := c.openDownload(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", Wrap(ErrConfiguration, "download result", "create local file", err)
	}

	counter := &progressReader{
		r:       resp.Body,
		total:   resp.ContentLength,
		lastPct: -20,
		label:   "downloading",
		fn:      fn,
	}
	written, copyErr := io.Copy(out, counter)
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(target)
		cause := copyErr
		if cause == nil {
			cause = closeErr
		}
		return "", Wrap(ErrTransient, "download result", "transfer interrupted", cause)
	}

	c.logger.Info("download complete",
		logging.String("path", target),
		logging.String("size", humanize.Bytes(uint64(written))))
	return target, nil
}

// openDownload establishes the GET exchange with the usual transport
// retry budget. The returned response body is still streaming.
func (c *Client) openDownload(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx, ratelimit.CategoryDefault); err != nil {
		return nil, Wrap(ErrTransient, "download result", "rate limit wait", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, Wrap(ErrConfiguration, "download result", "build request", err)
		}

		client := *c.httpClient
		client.Timeout = downloadTimeout

		resp, err := client.Do(req)
		if err == nil {
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, Wrap(ErrTransient, "download result", fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
			}
			return resp, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, Wrap(ErrTransient, "download result", "aborted", ctx.Err())
		}
		if !retryableTransport(err) || attempt == c.retryAttempts {
			break
		}
		c.logger.Warn("download failed, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", c.retryAttempts),
			logging.Error(err))
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			return nil, Wrap(ErrTransient, "download result", "retry wait", err)
		}
	}

	return nil, Wrap(ErrTransient, "download result", fmt.Sprintf("gave up after %d attempts", c.retryAttempts), lastErr)
}

// extFromURL picks the file extension from the URL path when it matches a
// known media type, otherwise the fallback.
func extFromURL(rawURL, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	for _, candidate := range knownMediaExts {
		if ext == candidate {
			return ext
		}
	}
	return fallback
}

// uniquePath returns a path that does not exist yet, bumping the
// millisecond timestamp on collision so a result never overwrites an
// earlier one.
func uniquePath(dir, prefix, ext string) string {
	ts := time.Now().UnixMilli()
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", prefix, ts, ext))
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		ts++
	}
}
