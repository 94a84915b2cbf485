package chanjing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

// Upload service identifiers accepted by the create_upload_url endpoint.
const (
	ServiceLipSyncVideo = "lip_sync_video"
	ServiceLipSyncAudio = "lip_sync_audio"
	ServicePromptAudio  = "prompt_audio"
)

// File states reported by the file detail endpoint. Anything other than
// synced keeps the uploader polling until the sync budget runs out.
const (
	fileStatusSynced    = 1
	fileStatusModerated = 98
	fileStatusDeleted   = 99
	fileStatusPurged    = 100
)

const defaultMimeType = "application/octet-stream"

// putAttempts bounds retries of the PUT transfer itself; the signed URL
// stays valid across attempts.
const putAttempts = 2

// ProgressFunc receives intra-stage progress updates in [0,100] plus a
// short human-readable note.
type ProgressFunc func(pct float64, note string)

// UploadResult identifies an uploaded file: the platform file id used by
// job creation plus the public URL some endpoints require instead.
type UploadResult struct {
	FileID string
	URL    string
}

// Upload pushes a local file to the platform in two steps (request a
// signed URL, PUT the bytes) and then polls until the file is synced
// server-side. Progress callbacks cover both the transfer and the sync
// wait.
func (c *Client) Upload(ctx context.Context, path, service string, fn ProgressFunc) (UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadResult{}, Wrap(ErrConfiguration, "upload file", fmt.Sprintf("cannot read %s", path), err)
	}

	name := filepath.Base(path)
	label := uploadLabel(service)
	c.logger.Info("uploading file",
		logging.String("file", name),
		logging.String("service", service),
		logging.String("size", humanize.Bytes(uint64(info.Size()))))

	query := url.Values{}
	query.Set("service", service)
	query.Set("name", name)

	var target uploadTarget
	err = c.callJSON(ctx, apiRequest{
		operation: "create upload url",
		method:    http.MethodGet,
		path:      "/open/v1/common/create_upload_url",
		query:     query,
		category:  ratelimit.CategoryDefault,
	}, &target)
	if err != nil {
		return UploadResult{}, err
	}
	if target.SignURL == "" || target.FileID == "" {
		return UploadResult{}, Wrap(ErrBusiness, "create upload url", "response missing sign_url or file_id", nil)
	}

	mime := target.MimeType
	if mime == "" {
		mime = defaultMimeType
	}
	if err := c.putFile(ctx, target.SignURL, mime, path, info.Size(), label, fn); err != nil {
		return UploadResult{}, err
	}

	c.logger.Info("upload complete, waiting for server sync",
		logging.String("file_id", target.FileID))
	if err := c.waitForSync(ctx, target.FileID, fn); err != nil {
		return UploadResult{}, err
	}

	return UploadResult{FileID: target.FileID, URL: target.FullPath}, nil
}

type uploadTarget struct {
	SignURL  string `json:"sign_url"`
	FileID   string `json:"file_id"`
	FullPath string `json:"full_path"`
	MimeType string `json:"mime_type"`
}

func uploadLabel(service string) string {
	if strings.Contains(service, "video") {
		return "uploading video"
	}
	return "uploading audio"
}

// putFile streams the file to the signed URL. Connection and timeout
// failures are retried; any HTTP status other than 200 is terminal.
func (c *Client) putFile(ctx context.Context, signURL, mimeType, path string, size int64, label string, fn ProgressFunc) error {
	if err := c.limiter.Wait(ctx, ratelimit.CategoryDefault); err != nil {
		return Wrap(ErrTransient, "upload file", "rate limit wait", err)
	}

	var lastErr error
	for attempt := 1; attempt <= putAttempts; attempt++ {
		status, err := c.putOnce(ctx, signURL, mimeType, path, size, label, fn)
		if err == nil {
			if status != http.StatusOK {
				return Wrap(ErrTransient, "upload file", fmt.Sprintf("transfer rejected with HTTP %d", status), nil)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return Wrap(ErrTransient, "upload file", "transfer aborted", ctx.Err())
		}
		if !retryableTransport(err) || attempt == putAttempts {
			break
		}
		c.logger.Warn("transfer failed, retrying",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", putAttempts),
			logging.Error(err))
		if err := c.sleep(ctx, c.retryDelay); err != nil {
			return Wrap(ErrTransient, "upload file", "retry wait", err)
		}
	}

	return Wrap(ErrTransient, "upload file", fmt.Sprintf("gave up after %d attempts", putAttempts), lastErr)
}

func (c *Client) putOnce(ctx context.Context, signURL, mimeType, path string, size int64, label string, fn ProgressFunc) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	body := &progressReader{
		r:       f,
		total:   size,
		lastPct: -20,
		label:   label,
		fn:      fn,
		eofNote: "data sent, waiting for server",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signURL, body)
	if err != nil {
		return 0, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", mimeType)

	client := *c.httpClient
	client.Timeout = c.transferTimeout

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// progressReader reports transfer progress at 20-point steps as the
// wrapped reader drains. For uploads, reaching EOF means the bytes left
// this process, not that the server acknowledged them, so callers can set
// eofNote to signal the remaining wait.
type progressReader struct {
	r       io.Reader
	total   int64
	read    int64
	lastPct int
	label   string
	fn      ProgressFunc
	eofNote string
	eofSent bool
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if p.total > 0 && p.fn != nil {
			pct := int(p.read * 100 / p.total)
			if pct >= p.lastPct+20 || pct >= 100 {
				if pct != p.lastPct {
					p.fn(float64(pct), fmt.Sprintf("%s: %d%%", p.label, pct))
				}
				p.lastPct = pct
			}
		}
	}
	if errors.Is(err, io.EOF) && p.eofNote != "" && !p.eofSent {
		p.eofSent = true
		if p.fn != nil {
			p.fn(100, p.eofNote)
		}
	}
	return n, err
}

// waitForSync polls the file detail endpoint until the platform reports
// the file synced. Moderation failures, deletions, and purges are
// terminal; query failures are tolerated and retried until the budget
// runs out.
func (c *Client) waitForSync(ctx context.Context, fileID string, fn ProgressFunc) error {
	start := time.Now()
	for {
		elapsed := time.Since(start)
		if elapsed > c.syncTimeout {
			return Wrap(ErrTimeout, "wait for file sync", fmt.Sprintf("file %s not synced after %ds", fileID, int(elapsed.Seconds())), nil)
		}
		if err := c.sleep(ctx, c.syncPollInterval); err != nil {
			return Wrap(ErrTransient, "wait for file sync", "aborted", err)
		}

		status, err := c.fileStatus(ctx, fileID)
		if err != nil {
			c.logger.Warn("file status query failed, still waiting",
				logging.String("file_id", fileID),
				logging.Error(err))
			continue
		}

		switch status {
		case fileStatusSynced:
			c.logger.Info("file synced",
				logging.String("file_id", fileID),
				logging.Duration("elapsed", time.Since(start).Round(time.Second)))
			return nil
		case fileStatusModerated:
			return Wrap(ErrRemoteState, "wait for file sync", fmt.Sprintf("file %s failed content moderation", fileID), nil)
		case fileStatusDeleted:
			return Wrap(ErrRemoteState, "wait for file sync", fmt.Sprintf("file %s was deleted", fileID), nil)
		case fileStatusPurged:
			return Wrap(ErrRemoteState, "wait for file sync", fmt.Sprintf("file %s was purged", fileID), nil)
		default:
			if fn != nil {
				pct := elapsed.Seconds()/c.syncTimeout.Seconds()*80 + 10
				if pct > 90 {
					pct = 90
				}
				fn(pct, fmt.Sprintf("file syncing (%ds)", int(elapsed.Seconds())))
			}
		}
	}
}

func (c *Client) fileStatus(ctx context.Context, fileID string) (int, error) {
	query := url.Values{}
	query.Set("id", fileID)

	var payload struct {
		Status int `json:"status"`
	}
	err := c.callJSON(ctx, apiRequest{
		operation: "query file status",
		method:    http.MethodGet,
		path:      "/open/v1/common/file_detail",
		query:     query,
		category:  ratelimit.CategoryDefault,
	}, &payload)
	if err != nil {
		return 0, err
	}
	return payload.Status, nil
}
