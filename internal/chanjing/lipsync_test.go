package chanjing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedServer serves canned envelope data payloads per path, optionally
// after a run of HTTP 500s. The last payload for a path repeats.
type scriptedServer struct {
	t      *testing.T
	mu     sync.Mutex
	calls  map[string]int
	fails  map[string]int
	data   map[string][]string
	bodies map[string][][]byte
	server *httptest.Server
}

func newScriptedServer(t *testing.T) *scriptedServer {
	t.Helper()
	s := &scriptedServer{
		t:      t,
		calls:  map[string]int{},
		fails:  map[string]int{},
		data:   map[string][]string{},
		bodies: map[string][][]byte{},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *scriptedServer) on(path string, payloads ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = payloads
}

func (s *scriptedServer) failFirst(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[path] = n
}

func (s *scriptedServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

func (s *scriptedServer) lastBody(path string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	bodies := s.bodies[path]
	if len(bodies) == 0 {
		return nil
	}
	return bodies[len(bodies)-1]
}

func (s *scriptedServer) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	path := r.URL.Path
	s.calls[path]++
	s.bodies[path] = append(s.bodies[path], body)
	if s.fails[path] > 0 {
		s.fails[path]--
		s.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	payloads, ok := s.data[path]
	if !ok || len(payloads) == 0 {
		s.mu.Unlock()
		s.t.Errorf("unexpected path %s", path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	payload := payloads[0]
	if len(payloads) > 1 {
		s.data[path] = payloads[1:]
	}
	s.mu.Unlock()

	fmt.Fprintf(w, `{"code":0,"msg":"","data":%s}`, payload)
}

func (s *scriptedServer) client(t *testing.T) *Client {
	t.Helper()
	client := newTestClient(t, s.server.URL)
	client.SetTokenSource(&stubTokens{tokens: []string{"tok"}})
	return client
}

func TestCreateLipSync(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/create", `"task-9"`)
	client := s.client(t)

	taskID, err := client.CreateLipSync(context.Background(), LipSyncRequest{
		VideoFileID:  "vf-1",
		AudioFileID:  "af-1",
		Model:        1,
		ScreenWidth:  1080,
		ScreenHeight: 1920,
		Backway:      2,
		DriveMode:    "random",
	})
	if err != nil {
		t.Fatalf("CreateLipSync returned error: %v", err)
	}
	if taskID != "task-9" {
		t.Errorf("task id = %q, want task-9", taskID)
	}

	var sent map[string]any
	if err := json.Unmarshal(s.lastBody("/open/v1/video_lip_sync/create"), &sent); err != nil {
		t.Fatalf("decode create body: %v", err)
	}
	if sent["video_file_id"] != "vf-1" || sent["audio_file_id"] != "af-1" {
		t.Errorf("create body file ids = %v", sent)
	}
	if sent["audio_type"] != "audio" {
		t.Errorf("audio_type = %v, want audio", sent["audio_type"])
	}
	if sent["screen_width"] != float64(1080) || sent["screen_height"] != float64(1920) {
		t.Errorf("screen dims = %v x %v", sent["screen_width"], sent["screen_height"])
	}
	if sent["backway"] != float64(2) || sent["drive_mode"] != "random" {
		t.Errorf("backway/drive_mode = %v/%v, want 2/random", sent["backway"], sent["drive_mode"])
	}
}

func TestCreateLipSyncRequiresFileIDs(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	if _, err := client.CreateLipSync(context.Background(), LipSyncRequest{}); !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestWaitLipSyncQueuedCapThenCompletion(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail",
		`{"status":0,"progress":50}`,
		`{"status":10,"progress":40}`,
		`{"status":10,"progress":80}`,
		`{"status":20,"progress":100,"video_url":"https://cdn.example.com/out.mp4","duration":15000}`,
	)
	client := s.client(t)
	rec := &progressRecorder{}

	result, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{}, rec.record)
	if err != nil {
		t.Fatalf("WaitLipSync returned error: %v", err)
	}
	if result.VideoURL != "https://cdn.example.com/out.mp4" {
		t.Errorf("video url = %q", result.VideoURL)
	}
	if result.Duration != 15*time.Second {
		t.Errorf("duration = %v, want 15s", result.Duration)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.pcts) == 0 {
		t.Fatal("no progress reported")
	}
	if rec.pcts[0] != 15 {
		t.Errorf("queued progress = %v, want capped to 15", rec.pcts[0])
	}
	if rec.notes[0] != "queued" {
		t.Errorf("queued note = %q", rec.notes[0])
	}
	if rec.pcts[len(rec.pcts)-1] != 100 {
		t.Errorf("final progress = %v, want 100", rec.pcts[len(rec.pcts)-1])
	}
}

func TestWaitLipSyncSuccessWithoutURL(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail", `{"status":20,"progress":100}`)
	client := s.client(t)

	_, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{}, nil)
	if !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error for missing URL, got %v", err)
	}
}

func TestWaitLipSyncBillingFailure(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail", `{"status":30,"progress":0,"msg":"扣费失败，蝉豆余额不足"}`)
	client := s.client(t)

	_, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{}, nil)
	if !errors.Is(err, ErrBilling) {
		t.Fatalf("expected billing error, got %v", err)
	}
}

func TestWaitLipSyncGenericFailure(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail", `{"status":30,"progress":0,"msg":"face not detected"}`)
	client := s.client(t)

	_, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{}, nil)
	if !errors.Is(err, ErrRemoteState) {
		t.Fatalf("expected remote state error, got %v", err)
	}
	if !strings.Contains(err.Error(), "face not detected") {
		t.Errorf("error %q missing server message", err)
	}
}

func TestWaitLipSyncFailureBudget(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail", `{"status":10,"progress":10}`)
	s.failFirst("/open/v1/video_lip_sync/detail", 10)
	client := s.client(t)

	_, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{FailureBudget: 5}, nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error after budget, got %v", err)
	}
	if got := s.count("/open/v1/video_lip_sync/detail"); got != 5 {
		t.Errorf("poll attempts = %d, want 5", got)
	}
}

func TestWaitLipSyncRecoversWithinBudget(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail",
		`{"status":20,"progress":100,"video_url":"https://cdn.example.com/out.mp4"}`,
	)
	s.failFirst("/open/v1/video_lip_sync/detail", 2)
	client := s.client(t)

	result, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{}, nil)
	if err != nil {
		t.Fatalf("WaitLipSync returned error: %v", err)
	}
	if result.VideoURL == "" {
		t.Error("expected video url after recovery")
	}
	if got := s.count("/open/v1/video_lip_sync/detail"); got != 3 {
		t.Errorf("poll attempts = %d, want 3", got)
	}
}

func TestWaitLipSyncTimeout(t *testing.T) {
	s := newScriptedServer(t)
	s.on("/open/v1/video_lip_sync/detail", `{"status":10,"progress":50}`)
	client := s.client(t)

	_, err := client.WaitLipSync(context.Background(), "task-9", PollOptions{Timeout: 30 * time.Millisecond}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
