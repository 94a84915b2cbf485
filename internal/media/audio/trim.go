package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Trim re-encodes the leading seconds of src into dst. The destination
// extension picks the container; an existing dst is overwritten.
func Trim(ctx context.Context, binary, src, dst string, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("trim %s: non-positive duration %d", src, seconds)
	}
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("trim %s: ffmpeg not available: %w", src, err)
	}

	compiled := ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{"t": strconv.Itoa(seconds)}).
		OverWriteOutput().
		Compile()

	cmd := exec.CommandContext(ctx, binary, compiled.Args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("trim %s: %w: %s", src, err, tailLines(string(output), 3))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("trim %s: no output produced: %w", src, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("trim %s: empty output", src)
	}
	return nil
}

// tailLines keeps the last n lines of noisy encoder output for error text.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
