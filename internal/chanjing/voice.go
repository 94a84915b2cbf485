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

// Voice clone states reported by the customised audio endpoint.
const (
	VoiceStatusWaiting    = 0
	VoiceStatusProcessing = 1
	VoiceStatusReady      = 2
	VoiceStatusExpired    = 3
	VoiceStatusFailed     = 4
	VoiceStatusDeleted    = 99
)

const (
	voicePollInterval       = 5 * time.Second
	defaultVoiceWaitTimeout = 10 * time.Minute
)

// VoiceCloneRequest describes a clone job. URL must be the public URL of
// an uploaded reference audio; ModelType selects the clone model.
type VoiceCloneRequest struct {
	Name      string
	URL       string
	ModelType string
}

// CreateVoiceClone submits a clone job and returns the voice id.
func (c *Client) CreateVoiceClone(ctx context.Context, req VoiceCloneRequest) (string, error) {
	if req.URL == "" {
		return "", Wrap(ErrBusiness, "create voice clone", "reference audio URL is required", nil)
	}

	var voiceID string
	err := c.callJSON(ctx, apiRequest{
		operation: "create voice clone",
		method:    http.MethodPost,
		path:      "/open/v1/create_customised_audio",
		body: map[string]string{
			"name":       req.Name,
			"url":        req.URL,
			"model_type": req.ModelType,
		},
		category: ratelimit.CategoryVoiceClone,
	}, &voiceID)
	if err != nil {
		return "", err
	}
	if voiceID == "" {
		return "", Wrap(ErrBusiness, "create voice clone", "response missing voice id", nil)
	}
	c.logger.Info("voice clone created", logging.String("voice_id", voiceID))
	return voiceID, nil
}

// VoiceDetail is the remote state of a cloned voice.
type VoiceDetail struct {
	Status   int    `json:"status"`
	Progress int    `json:"progress"`
	ErrMsg   string `json:"err_msg"`
}

// VoiceCloneDetail fetches the current state of a cloned voice. Cache
// revalidation uses it to confirm a remembered voice id still resolves to
// a usable voice.
func (c *Client) VoiceCloneDetail(ctx context.Context, voiceID string) (VoiceDetail, error) {
	query := url.Values{}
	query.Set("id", voiceID)

	var detail VoiceDetail
	err := c.callJSON(ctx, apiRequest{
		operation: "query voice clone",
		method:    http.MethodGet,
		path:      "/open/v1/customised_audio",
		query:     query,
		category:  ratelimit.CategoryVoiceClone,
	}, &detail)
	return detail, err
}

// WaitVoiceClone polls a clone job until the voice is ready. Expired,
// failed, and deleted voices are distinct terminal errors; failure
// messages are checked for billing keywords first.
func (c *Client) WaitVoiceClone(ctx context.Context, voiceID string, opts PollOptions, fn ProgressFunc) error {
	opts = opts.withDefaults(defaultVoiceWaitTimeout)
	start := time.Now()
	lastStatus := -1
	lastProgress := -1
	failures := 0

	c.logger.Info("waiting for voice clone", logging.String("voice_id", voiceID))
	for {
		if elapsed := time.Since(start); elapsed > opts.Timeout {
			return Wrap(ErrTimeout, "wait for voice clone", fmt.Sprintf("voice %s still processing after %ds", voiceID, int(elapsed.Seconds())), nil)
		}

		detail, err := c.VoiceCloneDetail(ctx, voiceID)
		if err != nil {
			failures++
			c.logger.Warn("voice clone poll failed",
				logging.String("voice_id", voiceID),
				logging.Int("consecutive_failures", failures),
				logging.Int("budget", opts.FailureBudget),
				logging.Error(err))
			if failures >= opts.FailureBudget {
				return Wrap(ErrTransient, "wait for voice clone", fmt.Sprintf("poll failed %d times in a row", failures), err)
			}
			if err := c.sleep(ctx, pollRetryInterval); err != nil {
				return Wrap(ErrTransient, "wait for voice clone", "aborted", err)
			}
			continue
		}
		failures = 0

		switch detail.Status {
		case VoiceStatusReady:
			if fn != nil {
				fn(100, "voice clone complete")
			}
			c.logger.Info("voice clone complete",
				logging.String("voice_id", voiceID),
				logging.Duration("elapsed", time.Since(start).Round(time.Second)))
			return nil
		case VoiceStatusFailed:
			if err := CheckBillingMessage("wait for voice clone", detail.ErrMsg); err != nil {
				return err
			}
			return Wrap(ErrRemoteState, "wait for voice clone", fmt.Sprintf("clone failed: %s", detail.ErrMsg), nil)
		case VoiceStatusExpired:
			return Wrap(ErrRemoteState, "wait for voice clone", fmt.Sprintf("voice %s has expired", voiceID), nil)
		case VoiceStatusDeleted:
			return Wrap(ErrRemoteState, "wait for voice clone", fmt.Sprintf("voice %s was deleted", voiceID), nil)
		}

		if detail.Status != lastStatus || detail.Progress != lastProgress {
			note := "waiting to process"
			if detail.Status == VoiceStatusProcessing {
				note = "processing"
			}
			if fn != nil {
				fn(float64(detail.Progress), fmt.Sprintf("cloning %d%% (%s)", detail.Progress, note))
			}
			c.logger.Debug("voice clone progress",
				logging.String("voice_id", voiceID),
				logging.Int("status", detail.Status),
				logging.Int("progress", detail.Progress))
			lastStatus = detail.Status
			lastProgress = detail.Progress
		}

		if err := c.sleep(ctx, voicePollInterval); err != nil {
			return Wrap(ErrTransient, "wait for voice clone", "aborted", err)
		}
	}
}
