package node

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"cicada/internal/chanjing"
	"cicada/internal/config"
	"cicada/internal/history"
	"cicada/internal/logging"
	"cicada/internal/progress"
	"cicada/internal/voicecache"
)

// Node is one executable operation exposed to the host graph.
type Node interface {
	Spec() Spec
	Execute(ctx context.Context, env *Env, in Inputs) (*Result, error)
}

// Env bundles the collaborators a node invocation needs. The embedding
// process builds it once and passes it to every Execute call; Config
// must be non-nil for nodes that talk to the remote service.
type Env struct {
	Client  *chanjing.Client
	Voices  *voicecache.Cache
	History *history.Store
	Config  *config.Config
	Logger  *slog.Logger

	// NewReporter builds the per-invocation progress reporter wired to
	// the process display sink. Nil means progress is tracked without
	// being displayed.
	NewReporter func(stages ...progress.Stage) *progress.Reporter

	// TempDir receives spooled media and trimmed reference audio;
	// OutputDir receives downloaded results. Empty values fall back to
	// the configured paths.
	TempDir   string
	OutputDir string
}

// Reporter builds the progress reporter for one invocation.
func (e *Env) Reporter(stages ...progress.Stage) *progress.Reporter {
	if e.NewReporter != nil {
		return e.NewReporter(stages...)
	}
	return progress.New(nil, e.Logger, stages...)
}

// Temp returns the directory for invocation-scoped scratch files.
func (e *Env) Temp() string {
	if strings.TrimSpace(e.TempDir) != "" {
		return e.TempDir
	}
	if e.Config != nil && strings.TrimSpace(e.Config.Paths.TempDir) != "" {
		return e.Config.Paths.TempDir
	}
	return os.TempDir()
}

// Output returns the directory downloaded results land in.
func (e *Env) Output() string {
	if strings.TrimSpace(e.OutputDir) != "" {
		return e.OutputDir
	}
	if e.Config != nil {
		return e.Config.Paths.OutputDir
	}
	return ""
}

// FFmpeg names the ffmpeg binary, honoring config overrides.
func (e *Env) FFmpeg() string {
	if e.Config != nil {
		return e.Config.FFmpegBinary()
	}
	return "ffmpeg"
}

// FFprobe names the ffprobe binary, honoring config overrides.
func (e *Env) FFprobe() string {
	if e.Config != nil {
		return e.Config.FFprobeBinary()
	}
	return "ffprobe"
}

// RecordHistory appends one invocation record to the ledger. Failures
// are logged and swallowed; the ledger never fails a node.
func (e *Env) RecordHistory(ctx context.Context, rec history.Record) {
	if e == nil {
		return
	}
	if err := e.History.Append(ctx, rec); err != nil {
		logging.NewComponentLogger(e.Logger, "history").Warn("failed to record invocation",
			logging.String("node", rec.Node),
			logging.Error(err))
	}
}
