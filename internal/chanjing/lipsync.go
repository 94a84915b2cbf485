package chanjing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

// Lip-sync render states reported by the detail endpoint.
const (
	lipSyncStatusQueued    = 0
	lipSyncStatusRendering = 10
	lipSyncStatusSucceeded = 20
	lipSyncStatusFailed    = 30
)

// queuedProgressCap keeps queue-position progress inside a small leading
// slice so the render stage owns the rest of the range.
const queuedProgressCap = 15

const (
	lipSyncPollInterval   = 5 * time.Second
	defaultLipSyncTimeout = 30 * time.Minute
	defaultFailureBudget  = 5
	pollRetryInterval     = 5 * time.Second
)

// PollOptions tunes a job poller. Zero values fall back to the per-job
// defaults (30min lip-sync, 10min clone and synthesis, budget 5).
type PollOptions struct {
	// Timeout bounds the total wall-clock wait for the job.
	Timeout time.Duration
	// FailureBudget is how many consecutive poll failures are tolerated
	// before the wait is abandoned.
	FailureBudget int
}

func (o PollOptions) withDefaults(timeout time.Duration) PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	if o.FailureBudget <= 0 {
		o.FailureBudget = defaultFailureBudget
	}
	return o
}

// LipSyncRequest describes a lip-sync render job. File ids come from
// prior uploads; width and height describe the source video canvas.
// Backway is 1 to loop forward or 2 to bounce; DriveMode is "" for
// first-frame driving or "random".
type LipSyncRequest struct {
	VideoFileID  string
	AudioFileID  string
	Model        int
	ScreenWidth  int
	ScreenHeight int
	Backway      int
	DriveMode    string
}

// LipSyncResult carries the rendered video URL and its duration as
// reported by the platform.
type LipSyncResult struct {
	VideoURL string
	Duration time.Duration
}

// CreateLipSync submits a render job and returns the task id.
func (c *Client) CreateLipSync(ctx context.Context, req LipSyncRequest) (string, error) {
	if req.VideoFileID == "" || req.AudioFileID == "" {
		return "", Wrap(ErrBusiness, "create lip sync job", "video and audio file ids are required", nil)
	}

	var taskID string
	err := c.callJSON(ctx, apiRequest{
		operation: "create lip sync job",
		method:    http.MethodPost,
		path:      "/open/v1/video_lip_sync/create",
		body: map[string]any{
			"video_file_id": req.VideoFileID,
			"audio_type":    "audio",
			"audio_file_id": req.AudioFileID,
			"model":         req.Model,
			"screen_width":  req.ScreenWidth,
			"screen_height": req.ScreenHeight,
			"backway":       req.Backway,
			"drive_mode":    req.DriveMode,
		},
		category: ratelimit.CategoryLipSync,
	}, &taskID)
	if err != nil {
		return "", err
	}
	if taskID == "" {
		return "", Wrap(ErrBusiness, "create lip sync job", "response missing task id", nil)
	}
	c.logger.Info("lip sync job created", logging.String("task_id", taskID))
	return taskID, nil
}

type lipSyncDetail struct {
	Status   int    `json:"status"`
	Progress int    `json:"progress"`
	Msg      string `json:"msg"`
	VideoURL string `json:"video_url"`
	Duration int64  `json:"duration"`
}

// WaitLipSync polls the render job until it succeeds, fails, or the
// wall-clock budget runs out. Progress callbacks carry queue position in
// the leading slice and the remote render percentage afterwards.
func (c *Client) WaitLipSync(ctx context.Context, taskID string, opts PollOptions, fn ProgressFunc) (LipSyncResult, error) {
	opts = opts.withDefaults(defaultLipSyncTimeout)
	start := time.Now()
	lastStatus := -1
	lastProgress := -1
	failures := 0

	c.logger.Info("waiting for lip sync render", logging.String("task_id", taskID))
	for {
		if elapsed := time.Since(start); elapsed > opts.Timeout {
			return LipSyncResult{}, Wrap(ErrTimeout, "wait for lip sync", fmt.Sprintf("task %s still running after %ds", taskID, int(elapsed.Seconds())), nil)
		}

		detail, err := c.lipSyncDetail(ctx, taskID)
		if err != nil {
			failures++
			c.logger.Warn("lip sync poll failed",
				logging.String("task_id", taskID),
				logging.Int("consecutive_failures", failures),
				logging.Int("budget", opts.FailureBudget),
				logging.Error(err))
			if failures >= opts.FailureBudget {
				return LipSyncResult{}, Wrap(ErrTransient, "wait for lip sync", fmt.Sprintf("poll failed %d times in a row", failures), err)
			}
			if err := c.sleep(ctx, pollRetryInterval); err != nil {
				return LipSyncResult{}, Wrap(ErrTransient, "wait for lip sync", "aborted", err)
			}
			continue
		}
		failures = 0

		if detail.Status != lastStatus || detail.Progress != lastProgress {
			if fn != nil {
				if detail.Status == lipSyncStatusQueued {
					pct := detail.Progress
					if pct > queuedProgressCap {
						pct = queuedProgressCap
					}
					fn(float64(pct), "queued")
				} else {
					fn(float64(detail.Progress), fmt.Sprintf("rendering %d%%", detail.Progress))
				}
			}
			c.logger.Debug("lip sync progress",
				logging.String("task_id", taskID),
				logging.Int("status", detail.Status),
				logging.Int("progress", detail.Progress))
			lastStatus = detail.Status
			lastProgress = detail.Progress
		}

		switch detail.Status {
		case lipSyncStatusSucceeded:
			if detail.VideoURL == "" {
				return LipSyncResult{}, Wrap(ErrBusiness, "wait for lip sync", "render succeeded but no video URL was returned", nil)
			}
			if fn != nil {
				fn(100, "render complete")
			}
			result := LipSyncResult{
				VideoURL: detail.VideoURL,
				Duration: time.Duration(detail.Duration) * time.Millisecond,
			}
			c.logger.Info("lip sync render complete",
				logging.String("task_id", taskID),
				logging.Duration("video_duration", result.Duration),
				logging.Duration("elapsed", time.Since(start).Round(time.Second)))
			return result, nil
		case lipSyncStatusFailed:
			if err := CheckBillingMessage("wait for lip sync", detail.Msg); err != nil {
				return LipSyncResult{}, err
			}
			return LipSyncResult{}, Wrap(ErrRemoteState, "wait for lip sync", fmt.Sprintf("render failed: %s", detail.Msg), nil)
		}

		if err := c.sleep(ctx, lipSyncPollInterval); err != nil {
			return LipSyncResult{}, Wrap(ErrTransient, "wait for lip sync", "aborted", err)
		}
	}
}

func (c *Client) lipSyncDetail(ctx context.Context, taskID string) (lipSyncDetail, error) {
	query := url.Values{}
	query.Set("id", taskID)

	var detail lipSyncDetail
	err := c.callJSON(ctx, apiRequest{
		operation: "query lip sync job",
		method:    http.MethodGet,
		path:      "/open/v1/video_lip_sync/detail",
		query:     query,
		category:  ratelimit.CategoryDefault,
	}, &detail)
	return detail, err
}
