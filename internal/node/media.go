package node

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cicada/internal/chanjing"
	"cicada/internal/media/audio"
)

// Kind names the media class a value should resolve to. It drives the
// extension of spooled temp files and appears in error messages.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

func (k Kind) ext() string {
	if k == KindVideo {
		return ".mp4"
	}
	return ".wav"
}

// PathResolver is implemented by host values whose media already lives
// on disk.
type PathResolver interface {
	MediaPath() (string, error)
}

// StreamSource is implemented by host values that hold their media in
// memory or behind a reader. MediaName is a filename hint whose
// extension is kept when the stream is spooled to disk.
type StreamSource interface {
	OpenMedia() (io.ReadCloser, error)
	MediaName() string
}

// AudioBuffer holds decoded PCM audio, one sample slice per channel.
// Audio-producing nodes return it and audio-consuming nodes accept it.
type AudioBuffer struct {
	Data       [][]float64
	SampleRate int
}

// Channels returns the channel count.
func (b *AudioBuffer) Channels() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Frames returns the per-channel sample count.
func (b *AudioBuffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length.
func (b *AudioBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / float64(b.SampleRate) * float64(time.Second))
}

// mediaKeys are the map fields checked, in order, when a host hands
// over a tagged map instead of a typed value.
var mediaKeys = []string{"path", "file", "filename", "filepath", "file_path", "url", "source"}

// ResolveMedia extracts a local file path from the value shapes hosts
// attach to media inputs: a path string, a PathResolver, a StreamSource
// (spooled into tempDir), a decoded *AudioBuffer (encoded to WAV in
// tempDir), a tagged map, or a list whose first resolvable element
// wins. cleanup removes anything ResolveMedia created and is never nil.
func ResolveMedia(value any, kind Kind, tempDir string) (string, func(), error) {
	path, cleanup, err := resolveMediaValue(value, kind, tempDir)
	if cleanup == nil {
		cleanup = func() {}
	}
	return path, cleanup, err
}

func resolveMediaValue(value any, kind Kind, tempDir string) (string, func(), error) {
	switch v := value.(type) {
	case nil:
		return "", nil, resolveErr(kind, "no input provided", nil)
	case string:
		if strings.TrimSpace(v) == "" {
			return "", nil, resolveErr(kind, "empty path", nil)
		}
		return v, nil, nil
	case PathResolver:
		path, err := v.MediaPath()
		if err != nil {
			return "", nil, resolveErr(kind, "source failed to report its path", err)
		}
		if strings.TrimSpace(path) == "" {
			return "", nil, resolveErr(kind, "source reported an empty path", nil)
		}
		return path, nil, nil
	case StreamSource:
		return spoolStream(v, kind, tempDir)
	case *AudioBuffer:
		if kind != KindAudio {
			return "", nil, resolveErr(kind, "audio buffer cannot serve as this input", nil)
		}
		return spoolAudioBuffer(v, tempDir)
	case map[string]any:
		for _, key := range mediaKeys {
			if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
				return s, nil, nil
			}
		}
		if len(v) == 1 {
			for _, single := range v {
				if s, ok := single.(string); ok && strings.TrimSpace(s) != "" {
					return s, nil, nil
				}
			}
		}
		return "", nil, resolveErr(kind, fmt.Sprintf("map carries none of the path keys (%s)", strings.Join(mediaKeys, ", ")), nil)
	case []any:
		for _, item := range v {
			path, cleanup, err := resolveMediaValue(item, kind, tempDir)
			if err == nil {
				return path, cleanup, nil
			}
		}
		return "", nil, resolveErr(kind, "list carries no resolvable element", nil)
	}
	return "", nil, resolveErr(kind, fmt.Sprintf("unsupported value type %T", value), nil)
}

func resolveErr(kind Kind, message string, cause error) error {
	return chanjing.Wrap(chanjing.ErrBusiness, fmt.Sprintf("resolve %s input", kind), message, cause)
}

// VerifyLocalFile confirms a resolved media path points at a non-empty
// regular file before any remote work starts.
func VerifyLocalFile(path string, kind Kind) error {
	op := fmt.Sprintf("check %s input", kind)
	info, err := os.Stat(path)
	if err != nil {
		return chanjing.Wrap(chanjing.ErrBusiness, op, fmt.Sprintf("file not found: %s", path), err)
	}
	if info.IsDir() {
		return chanjing.Wrap(chanjing.ErrBusiness, op, fmt.Sprintf("%s is a directory", path), nil)
	}
	if info.Size() == 0 {
		return chanjing.Wrap(chanjing.ErrBusiness, op, fmt.Sprintf("file is empty: %s", path), nil)
	}
	return nil
}

func spoolStream(src StreamSource, kind Kind, tempDir string) (string, func(), error) {
	reader, err := src.OpenMedia()
	if err != nil {
		return "", nil, resolveErr(kind, "open stream", err)
	}
	defer reader.Close()

	ext := strings.ToLower(filepath.Ext(src.MediaName()))
	if ext == "" {
		ext = kind.ext()
	}
	tmp, err := os.CreateTemp(tempDir, "cicada-media-*"+ext)
	if err != nil {
		return "", nil, chanjing.Wrap(chanjing.ErrConfiguration, "resolve media", "create temp file", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, resolveErr(kind, "spool stream", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, chanjing.Wrap(chanjing.ErrConfiguration, "resolve media", "flush temp file", err)
	}
	return tmp.Name(), cleanup, nil
}

func spoolAudioBuffer(buf *AudioBuffer, tempDir string) (string, func(), error) {
	if buf == nil || len(buf.Data) == 0 {
		return "", nil, resolveErr(KindAudio, "audio buffer holds no samples", nil)
	}
	tmp, err := os.CreateTemp(tempDir, "cicada-audio-*.wav")
	if err != nil {
		return "", nil, chanjing.Wrap(chanjing.ErrConfiguration, "resolve media", "create temp file", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if err := audio.EncodeWAV(tmp, buf.Data, buf.SampleRate); err != nil {
		tmp.Close()
		cleanup()
		return "", nil, resolveErr(KindAudio, "encode audio buffer", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, chanjing.Wrap(chanjing.ErrConfiguration, "resolve media", "flush temp file", err)
	}
	return tmp.Name(), cleanup, nil
}
