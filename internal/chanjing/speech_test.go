package chanjing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateSpeechTask(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/create_audio_task", `{"task_id":"t-1"}`)
	client := s.client(t)

	taskID, err := client.CreateSpeechTask(context.Background(), SpeechRequest{
		VoiceID: "voice-7",
		Speed:   1.2,
		Pitch:   0.8,
		Text:    "你好，世界",
	})
	if err != nil {
		t.Fatalf("CreateSpeechTask returned error: %v", err)
	}
	if taskID != "t-1" {
		t.Errorf("task id = %q, want t-1", taskID)
	}

	var sent struct {
		AudioMan string  `json:"audio_man"`
		Speed    float64 `json:"speed"`
		Pitch    float64 `json:"pitch"`
		Text     struct {
			Text      string `json:"text"`
			PlainText string `json:"plain_text"`
		} `json:"text"`
	}
	if err := json.Unmarshal(s.lastBody("/open/v1/create_audio_task"), &sent); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	if sent.AudioMan != "voice-7" {
		t.Errorf("audio_man = %q, want voice-7", sent.AudioMan)
	}
	if sent.Speed != 1.2 || sent.Pitch != 0.8 {
		t.Errorf("speed/pitch = %v/%v, want 1.2/0.8", sent.Speed, sent.Pitch)
	}
	if sent.Text.Text != "你好，世界" || sent.Text.PlainText != "你好，世界" {
		t.Errorf("text payload = %+v", sent.Text)
	}
}

func TestCreateSpeechTaskValidation(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")

	if _, err := client.CreateSpeechTask(context.Background(), SpeechRequest{Text: "hi"}); !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error for missing voice, got %v", err)
	}
	if _, err := client.CreateSpeechTask(context.Background(), SpeechRequest{VoiceID: "voice-7"}); !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error for missing text, got %v", err)
	}
}

func TestWaitSpeechCompletes(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state",
		`{"status":1}`,
		`{"status":1}`,
		`{"status":9,"full":{"url":"https://cdn.example.com/out.mp3","duration":12.5}}`,
	)
	client := s.client(t)
	rec := &progressRecorder{}

	result, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{}, rec.record)
	if err != nil {
		t.Fatalf("WaitSpeech returned error: %v", err)
	}
	if result.URL != "https://cdn.example.com/out.mp3" {
		t.Errorf("url = %q", result.URL)
	}
	if result.Duration != 12.5 {
		t.Errorf("duration = %v, want 12.5", result.Duration)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	wantPcts := []float64{15, 30, 100}
	if len(rec.pcts) != len(wantPcts) {
		t.Fatalf("progress updates = %v, want %v", rec.pcts, wantPcts)
	}
	for i, want := range wantPcts {
		if rec.pcts[i] != want {
			t.Errorf("pcts[%d] = %v, want %v", i, rec.pcts[i], want)
		}
	}
	if rec.notes[0] != "synthesizing" {
		t.Errorf("ramp note = %q", rec.notes[0])
	}
	if rec.notes[len(rec.notes)-1] != "synthesis complete" {
		t.Errorf("final note = %q", rec.notes[len(rec.notes)-1])
	}
}

func TestWaitSpeechBillingFailure(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state", `{"status":9,"errMsg":"余额不足，请充值"}`)
	client := s.client(t)

	_, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{}, nil)
	if !errors.Is(err, ErrBilling) {
		t.Fatalf("expected billing error, got %v", err)
	}
}

func TestWaitSpeechFailureWithReason(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state", `{"status":9,"errMsg":"synthesis rejected","errReason":"unsupported characters"}`)
	client := s.client(t)

	_, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{}, nil)
	if !errors.Is(err, ErrRemoteState) {
		t.Fatalf("expected remote state error, got %v", err)
	}
	if !strings.Contains(err.Error(), "synthesis rejected") || !strings.Contains(err.Error(), "unsupported characters") {
		t.Errorf("error %q missing message or reason", err)
	}
}

func TestWaitSpeechMissingURL(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state", `{"status":9}`)
	client := s.client(t)

	_, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{}, nil)
	if !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error for missing URL, got %v", err)
	}
}

func TestWaitSpeechToleratesUnknownStatus(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state",
		`{"status":5}`,
		`{"status":1}`,
		`{"status":9,"full":{"url":"https://cdn.example.com/out.mp3","duration":3}}`,
	)
	client := s.client(t)

	result, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{}, nil)
	if err != nil {
		t.Fatalf("WaitSpeech returned error: %v", err)
	}
	if result.URL == "" {
		t.Error("expected audio url after unknown status")
	}
	if got := s.count("/open/v1/audio_task_state"); got != 3 {
		t.Errorf("poll attempts = %d, want 3", got)
	}
}

func TestWaitSpeechFailureBudget(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state", `{"status":1}`)
	s.failFirst("/open/v1/audio_task_state", 10)
	client := s.client(t)

	_, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{FailureBudget: 4}, nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error after budget, got %v", err)
	}
	if got := s.count("/open/v1/audio_task_state"); got != 4 {
		t.Errorf("poll attempts = %d, want 4", got)
	}
}

func TestWaitSpeechTimeout(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/audio_task_state", `{"status":1}`)
	client := s.client(t)

	_, err := client.WaitSpeech(context.Background(), "t-1", PollOptions{Timeout: 30 * time.Millisecond}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestSpeechRampPct(t *testing.T) {
	cases := []struct {
		polls int
		want  float64
	}{
		{1, 15},
		{2, 30},
		{6, 90},
		{7, 91},
		{10, 94},
		{11, 95},
		{40, 95},
	}
	for _, tc := range cases {
		if got := speechRampPct(tc.polls); got != tc.want {
			t.Errorf("speechRampPct(%d) = %v, want %v", tc.polls, got, tc.want)
		}
	}
}
