package node_test

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cicada/internal/chanjing"
	"cicada/internal/media/audio"
	"cicada/internal/node"
)

type pathValue struct {
	path string
	err  error
}

func (p pathValue) MediaPath() (string, error) { return p.path, p.err }

type streamValue struct {
	name string
	data []byte
}

func (s streamValue) OpenMedia() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.data)), nil
}

func (s streamValue) MediaName() string { return s.name }

func TestResolveMediaString(t *testing.T) {
	path, cleanup, err := node.ResolveMedia("/media/in.mp4", node.KindVideo, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if path != "/media/in.mp4" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveMediaEmptyString(t *testing.T) {
	_, _, err := node.ResolveMedia("  ", node.KindAudio, t.TempDir())
	if !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestResolveMediaPathResolver(t *testing.T) {
	path, cleanup, err := node.ResolveMedia(pathValue{path: "/media/clip.wav"}, node.KindAudio, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if path != "/media/clip.wav" {
		t.Errorf("path = %q", path)
	}

	if _, _, err := node.ResolveMedia(pathValue{err: errors.New("detached")}, node.KindAudio, t.TempDir()); !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error for failing resolver, got %v", err)
	}
}

func TestResolveMediaStreamSpools(t *testing.T) {
	dir := t.TempDir()
	value := streamValue{name: "clip.MP3", data: []byte("audio-bytes")}

	path, cleanup, err := node.ResolveMedia(value, node.KindAudio, dir)
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	if filepath.Ext(path) != ".mp3" {
		t.Errorf("spooled extension = %q, want .mp3 from the name hint", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spooled file: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Errorf("spooled content = %q", data)
	}

	cleanup()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("cleanup left the spooled file behind: %v", err)
	}
}

func TestResolveMediaStreamDefaultExtension(t *testing.T) {
	path, cleanup, err := node.ResolveMedia(streamValue{name: "clip", data: []byte("x")}, node.KindVideo, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if filepath.Ext(path) != ".mp4" {
		t.Errorf("spooled extension = %q, want .mp4 for video", filepath.Ext(path))
	}
}

func TestResolveMediaAudioBuffer(t *testing.T) {
	dir := t.TempDir()
	buf := &node.AudioBuffer{Data: [][]float64{{0, 0.5, -0.5}}, SampleRate: 8000}

	path, cleanup, err := node.ResolveMedia(buf, node.KindAudio, dir)
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open encoded file: %v", err)
	}
	defer f.Close()
	samples, rate, err := audio.DecodeWAV(f)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
	if len(samples) != 1 || len(samples[0]) != 3 {
		t.Errorf("decoded shape = %dx%d, want 1x3", len(samples), len(samples[0]))
	}
}

func TestResolveMediaAudioBufferRejectedForVideo(t *testing.T) {
	buf := &node.AudioBuffer{Data: [][]float64{{0}}, SampleRate: 8000}
	_, _, err := node.ResolveMedia(buf, node.KindVideo, t.TempDir())
	if !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestResolveMediaMapKeys(t *testing.T) {
	path, cleanup, err := node.ResolveMedia(map[string]any{"filename": "/media/a.wav", "junk": 1}, node.KindAudio, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if path != "/media/a.wav" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveMediaSingleEntryMap(t *testing.T) {
	path, cleanup, err := node.ResolveMedia(map[string]any{"anything": "/media/b.wav"}, node.KindAudio, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if path != "/media/b.wav" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveMediaMapWithoutPath(t *testing.T) {
	_, _, err := node.ResolveMedia(map[string]any{"width": 1920, "height": 1080}, node.KindVideo, t.TempDir())
	if !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
	if !strings.Contains(err.Error(), "path keys") {
		t.Errorf("error should name the keys searched: %v", err)
	}
}

func TestResolveMediaListPicksFirstResolvable(t *testing.T) {
	value := []any{map[string]any{"nothing": 1}, "/media/c.wav"}

	path, cleanup, err := node.ResolveMedia(value, node.KindAudio, t.TempDir())
	if err != nil {
		t.Fatalf("ResolveMedia failed: %v", err)
	}
	defer cleanup()
	if path != "/media/c.wav" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveMediaUnsupportedType(t *testing.T) {
	_, _, err := node.ResolveMedia(42, node.KindAudio, t.TempDir())
	if !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
	if !strings.Contains(err.Error(), "int") {
		t.Errorf("error should name the offending type: %v", err)
	}
}

func TestResolveMediaNil(t *testing.T) {
	_, cleanup, err := node.ResolveMedia(nil, node.KindVideo, t.TempDir())
	if !errors.Is(err, chanjing.ErrBusiness) {
		t.Fatalf("expected business error, got %v", err)
	}
	cleanup()
}

func TestVerifyLocalFile(t *testing.T) {
	dir := t.TempDir()

	full := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(full, []byte("data"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := node.VerifyLocalFile(full, node.KindAudio); err != nil {
		t.Errorf("VerifyLocalFile on regular file failed: %v", err)
	}

	if err := node.VerifyLocalFile(filepath.Join(dir, "missing.wav"), node.KindAudio); !errors.Is(err, chanjing.ErrBusiness) {
		t.Errorf("expected business error for missing file, got %v", err)
	}

	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if err := node.VerifyLocalFile(empty, node.KindVideo); !errors.Is(err, chanjing.ErrBusiness) {
		t.Errorf("expected business error for empty file, got %v", err)
	}

	if err := node.VerifyLocalFile(dir, node.KindVideo); !errors.Is(err, chanjing.ErrBusiness) {
		t.Errorf("expected business error for directory, got %v", err)
	}
}
