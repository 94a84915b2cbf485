package chanjing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cicada/internal/logging"
	"cicada/internal/ratelimit"
)

// Speech synthesis states. Finished covers both success and failure; the
// embedded error message tells them apart.
const (
	speechStatusProcessing = 1
	speechStatusFinished   = 9
)

const (
	speechPollFastInterval   = 3 * time.Second
	speechPollSlowInterval   = 5 * time.Second
	speechFastPolls          = 10
	defaultSpeechWaitTimeout = 10 * time.Minute
)

// SpeechRequest describes a synthesis job driven by a cloned voice.
type SpeechRequest struct {
	VoiceID string
	Speed   float64
	Pitch   float64
	Text    string
}

// CreateSpeechTask submits a synthesis job and returns the task id.
func (c *Client) CreateSpeechTask(ctx context.Context, req SpeechRequest) (string, error) {
	if req.VoiceID == "" {
		return "", Wrap(ErrBusiness, "create speech task", "voice id is required", nil)
	}
	if req.Text == "" {
		return "", Wrap(ErrBusiness, "create speech task", "text is required", nil)
	}

	var payload struct {
		TaskID string `json:"task_id"`
	}
	err := c.callJSON(ctx, apiRequest{
		operation: "create speech task",
		method:    http.MethodPost,
		path:      "/open/v1/create_audio_task",
		body: map[string]any{
			"audio_man": req.VoiceID,
			"speed":     req.Speed,
			"pitch":     req.Pitch,
			"text": map[string]string{
				"text":       req.Text,
				"plain_text": req.Text,
			},
		},
		category: ratelimit.CategoryTTS,
	}, &payload)
	if err != nil {
		return "", err
	}
	if payload.TaskID == "" {
		return "", Wrap(ErrBusiness, "create speech task", "response missing task id", nil)
	}
	c.logger.Info("speech task created", logging.String("task_id", payload.TaskID))
	return payload.TaskID, nil
}

type speechState struct {
	Status    int    `json:"status"`
	ErrMsg    string `json:"errMsg"`
	ErrReason string `json:"errReason"`
	Full      struct {
		URL      string  `json:"url"`
		Duration float64 `json:"duration"`
	} `json:"full"`
}

// SpeechResult carries the synthesized audio URL and its duration in
// seconds as reported by the platform.
type SpeechResult struct {
	URL      string
	Duration float64
}

// WaitSpeech polls a synthesis job until it finishes. The endpoint
// reports no percentage while processing, so progress is estimated from
// the poll count and stays below 100 until the terminal state arrives.
func (c *Client) WaitSpeech(ctx context.Context, taskID string, opts PollOptions, fn ProgressFunc) (SpeechResult, error) {
	opts = opts.withDefaults(defaultSpeechWaitTimeout)
	start := time.Now()
	polls := 0
	failures := 0

	c.logger.Info("waiting for speech synthesis", logging.String("task_id", taskID))
	for {
		if elapsed := time.Since(start); elapsed > opts.Timeout {
			return SpeechResult{}, Wrap(ErrTimeout, "wait for speech synthesis", fmt.Sprintf("task %s still running after %ds", taskID, int(elapsed.Seconds())), nil)
		}

		state, err := c.speechTaskState(ctx, taskID)
		if err != nil {
			failures++
			c.logger.Warn("speech poll failed",
				logging.String("task_id", taskID),
				logging.Int("consecutive_failures", failures),
				logging.Int("budget", opts.FailureBudget),
				logging.Error(err))
			if failures >= opts.FailureBudget {
				return SpeechResult{}, Wrap(ErrTransient, "wait for speech synthesis", fmt.Sprintf("poll failed %d times in a row", failures), err)
			}
			if err := c.sleep(ctx, pollRetryInterval); err != nil {
				return SpeechResult{}, Wrap(ErrTransient, "wait for speech synthesis", "aborted", err)
			}
			continue
		}
		failures = 0

		switch state.Status {
		case speechStatusFinished:
			if state.ErrMsg != "" {
				if err := CheckBillingMessage("wait for speech synthesis", state.ErrMsg); err != nil {
					return SpeechResult{}, err
				}
				detail := state.ErrMsg
				if state.ErrReason != "" {
					detail = fmt.Sprintf("%s (reason: %s)", state.ErrMsg, state.ErrReason)
				}
				return SpeechResult{}, Wrap(ErrRemoteState, "wait for speech synthesis", fmt.Sprintf("synthesis failed: %s", detail), nil)
			}
			if state.Full.URL == "" {
				return SpeechResult{}, Wrap(ErrBusiness, "wait for speech synthesis", "synthesis finished but no audio URL was returned", nil)
			}
			if fn != nil {
				fn(100, "synthesis complete")
			}
			c.logger.Info("speech synthesis complete",
				logging.String("task_id", taskID),
				logging.Float64("audio_seconds", state.Full.Duration),
				logging.Duration("elapsed", time.Since(start).Round(time.Second)))
			return SpeechResult{URL: state.Full.URL, Duration: state.Full.Duration}, nil
		case speechStatusProcessing:
			polls++
			if fn != nil {
				fn(speechRampPct(polls), "synthesizing")
			}
			interval := speechPollFastInterval
			if polls > speechFastPolls {
				interval = speechPollSlowInterval
			}
			if err := c.sleep(ctx, interval); err != nil {
				return SpeechResult{}, Wrap(ErrTransient, "wait for speech synthesis", "aborted", err)
			}
		default:
			polls++
			c.logger.Warn("speech task reported unknown status, still waiting",
				logging.String("task_id", taskID),
				logging.Int("status", state.Status))
			if err := c.sleep(ctx, speechPollSlowInterval); err != nil {
				return SpeechResult{}, Wrap(ErrTransient, "wait for speech synthesis", "aborted", err)
			}
		}
	}
}

func (c *Client) speechTaskState(ctx context.Context, taskID string) (speechState, error) {
	var state speechState
	err := c.callJSON(ctx, apiRequest{
		operation: "query speech task",
		method:    http.MethodPost,
		path:      "/open/v1/audio_task_state",
		body:      map[string]string{"task_id": taskID},
		category:  ratelimit.CategoryTTS,
	}, &state)
	return state, err
}

// speechRampPct estimates progress from the poll count: a fast ramp to 90
// over the first six polls, then a slow crawl capped at 95 so completion
// is never implied before the terminal status confirms it.
func speechRampPct(polls int) float64 {
	if polls <= 6 {
		pct := polls * 15
		if pct > 90 {
			pct = 90
		}
		return float64(pct)
	}
	pct := 90 + (polls - 6)
	if pct > 95 {
		pct = 95
	}
	return float64(pct)
}
