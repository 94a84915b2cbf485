package progress

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"cicada/internal/logging"
)

// NewLogSink returns a sink that records display updates through the
// logger. The reporter already deduplicates, so every call is logged.
func NewLogSink(logger *slog.Logger) Sink {
	log := logging.NewComponentLogger(logger, "progress")
	return SinkFunc(func(pct int, note string) {
		log.Info("progress", logging.Int("pct", pct), logging.String("note", note))
	})
}

type barSink struct {
	bar *progressbar.ProgressBar
}

// NewTerminalSink renders a live progress bar on the given file.
func NewTerminalSink(out *os.File) Sink {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	return &barSink{bar: bar}
}

func (s *barSink) Update(pct int, note string) {
	s.bar.Describe(note)
	_ = s.bar.Set(pct)
}

// AutoSink picks a terminal bar when out is a TTY and a log sink
// otherwise, so piped output stays line oriented.
func AutoSink(out *os.File, logger *slog.Logger) Sink {
	if out != nil && (isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())) {
		return NewTerminalSink(out)
	}
	return NewLogSink(logger)
}
