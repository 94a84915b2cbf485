// Package progress maps multi-stage pipelines onto a single 0-100
// value for display. Stages carry relative weights that are normalized
// into a cumulative partition at construction; remote jobs then drive
// the current stage with their own intra-stage percentages.
package progress

import (
	"log/slog"
	"math"
	"sync"

	"cicada/internal/logging"
)

// Stage names one pipeline phase and its relative weight.
type Stage struct {
	Name   string
	Weight float64
}

// Sink receives deduplicated display updates.
type Sink interface {
	Update(pct int, note string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(pct int, note string)

func (f SinkFunc) Update(pct int, note string) { f(pct, note) }

type stageSpan struct {
	name  string
	start float64
	span  float64
}

// Reporter tracks progress through weighted stages. Updates may arrive
// out of order from asynchronous remote polls; equal or lower values
// are applied rather than rejected, and only display changes reach the
// sink.
type Reporter struct {
	mu     sync.Mutex
	stages []stageSpan
	idx    int
	sink   Sink
	logger *slog.Logger

	pct       float64
	note      string
	lastShown int
	lastNote  string
	emitted   bool
}

// New builds a reporter over the given stages. Weights are normalized
// so the spans sum to 100 in list order; non-positive weight lists fall
// back to an even split.
func New(sink Sink, logger *slog.Logger, stages ...Stage) *Reporter {
	spans := make([]stageSpan, 0, len(stages))
	total := 0.0
	for _, stage := range stages {
		if stage.Weight > 0 {
			total += stage.Weight
		}
	}
	cumulative := 0.0
	for _, stage := range stages {
		weight := stage.Weight
		if total <= 0 {
			weight = 1
		} else if weight < 0 {
			weight = 0
		}
		divisor := total
		if divisor <= 0 {
			divisor = float64(len(stages))
		}
		span := weight / divisor * 100
		spans = append(spans, stageSpan{name: stage.Name, start: cumulative, span: span})
		cumulative += span
	}
	return &Reporter{
		stages: spans,
		idx:    -1,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "progress"),
	}
}

// Start reports zero before the first stage begins.
func (r *Reporter) Start() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.set(0, "starting")
}

// Advance moves the cursor to the named stage and reports its start
// percentage. Unknown names are logged and ignored.
func (r *Reporter) Advance(name string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, stage := range r.stages {
		if stage.name == name {
			r.idx = i
			r.set(stage.start, name)
			return
		}
	}
	r.logger.Warn("unknown progress stage", logging.String("stage", name))
}

// Update maps an intra-stage percentage onto the global scale. Calls
// before the first Advance are ignored.
func (r *Reporter) Update(inner float64, note string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx < 0 || r.idx >= len(r.stages) {
		return
	}
	stage := r.stages[r.idx]
	if note == "" {
		note = stage.name
	}
	r.set(stage.start+stage.span*inner/100, note)
}

// Finish forces the display to 100.
func (r *Reporter) Finish(note string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if note == "" {
		note = "done"
	}
	r.set(100, note)
}

// Percent returns the latest clamped global percentage.
func (r *Reporter) Percent() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return clampPct(r.pct)
}

// Note returns the latest display note.
func (r *Reporter) Note() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.note
}

// StageSpan reports the normalized start and span for a stage, useful
// for callers sizing expectations around a stage boundary.
func (r *Reporter) StageSpan(name string) (start, span float64, ok bool) {
	if r == nil {
		return 0, 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stage := range r.stages {
		if stage.name == name {
			return stage.start, stage.span, true
		}
	}
	return 0, 0, false
}

func (r *Reporter) set(pct float64, note string) {
	if math.IsNaN(pct) {
		return
	}
	r.pct = pct
	r.note = note

	shown := clampPct(pct)
	if r.emitted && shown == r.lastShown && note == r.lastNote {
		return
	}
	r.emitted = true
	r.lastShown = shown
	r.lastNote = note
	if r.sink != nil {
		r.sink.Update(shown, note)
	}
}

func clampPct(pct float64) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return int(pct)
}
