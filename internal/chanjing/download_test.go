package chanjing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestDownloadHappyPath(t *testing.T) {
	content := strings.Repeat("v", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	dir := t.TempDir()
	rec := &progressRecorder{}

	path, err := client.Download(context.Background(), server.URL+"/media/result.mp3", dir, "cicada_clone", ".wav", rec.record)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}

	name := filepath.Base(path)
	if ok, _ := regexp.MatchString(`^cicada_clone_\d+\.mp3$`, name); !ok {
		t.Errorf("filename = %q, want cicada_clone_<millis>.mp3", name)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Errorf("downloaded %d bytes, want %d", len(got), len(content))
	}
	rec.mu.Lock()
	finalPct := rec.pcts[len(rec.pcts)-1]
	rec.mu.Unlock()
	if finalPct != 100 {
		t.Errorf("final progress = %v, want 100", finalPct)
	}
}

func TestDownloadFallbackExtension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("data"))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)

	path, err := client.Download(context.Background(), server.URL+"/media/result.bin", t.TempDir(), "cicada", ".mp4", nil)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("extension = %q, want .mp4 fallback", filepath.Ext(path))
	}
}

func TestDownloadHTTPErrorLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	dir := t.TempDir()

	_, err := client.Download(context.Background(), server.URL+"/gone.mp4", dir, "cicada", ".mp4", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty output dir, found %d entries", len(entries))
	}
}

func TestDownloadInterruptedRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4096")
		_, _ = w.Write([]byte("short"))
	}))
	t.Cleanup(server.Close)

	client := newTestClient(t, server.URL)
	dir := t.TempDir()

	_, err := client.Download(context.Background(), server.URL+"/cut.mp4", dir, "cicada", ".mp4", nil)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("partial file not cleaned up, found %d entries", len(entries))
	}
}

func TestDownloadEmptyURL(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	if _, err := client.Download(context.Background(), " ", t.TempDir(), "cicada", ".mp4", nil); !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestExtFromURL(t *testing.T) {
	cases := []struct {
		url      string
		fallback string
		want     string
	}{
		{"https://cdn.example.com/a/b/result.mp3", ".wav", ".mp3"},
		{"https://cdn.example.com/a/result.MP3?sig=abc", ".wav", ".mp3"},
		{"https://cdn.example.com/a/result.flac", ".mp3", ".flac"},
		{"https://cdn.example.com/a/result.mp4?expires=99", ".mp4", ".mp4"},
		{"https://cdn.example.com/a/result.bin", ".mp3", ".mp3"},
		{"https://cdn.example.com/a/noext", ".mp4", ".mp4"},
	}
	for _, tc := range cases {
		if got := extFromURL(tc.url, tc.fallback); got != tc.want {
			t.Errorf("extFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestUniquePathNeverReuses(t *testing.T) {
	dir := t.TempDir()

	first := uniquePath(dir, "cicada", ".mp4")
	if err := os.WriteFile(first, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := uniquePath(dir, "cicada", ".mp4")
	if first == second {
		t.Errorf("uniquePath reused %q", first)
	}
}
