package progress

import (
	"math"
	"sync"
	"testing"
)

type recordingSink struct {
	mu      sync.Mutex
	pcts    []int
	notes   []string
	updates int
}

func (s *recordingSink) Update(pct int, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pcts = append(s.pcts, pct)
	s.notes = append(s.notes, note)
	s.updates++
}

func (s *recordingSink) last() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pcts) == 0 {
		return -1, ""
	}
	return s.pcts[len(s.pcts)-1], s.notes[len(s.notes)-1]
}

func TestSpansSumToHundred(t *testing.T) {
	weightLists := [][]Stage{
		{{Name: "a", Weight: 5}, {Name: "b", Weight: 15}, {Name: "c", Weight: 10}, {Name: "d", Weight: 65}, {Name: "e", Weight: 5}},
		{{Name: "a", Weight: 1}, {Name: "b", Weight: 1}, {Name: "c", Weight: 1}},
		{{Name: "only", Weight: 7}},
		{{Name: "a", Weight: 0}, {Name: "b", Weight: 0}},
	}
	for _, stages := range weightLists {
		r := New(nil, nil, stages...)
		total := 0.0
		for _, stage := range stages {
			_, span, ok := r.StageSpan(stage.Name)
			if !ok {
				t.Fatalf("missing stage %q", stage.Name)
			}
			total += span
		}
		if math.Abs(total-100) > 1e-9 {
			t.Errorf("spans for %v sum to %v, want 100", stages, total)
		}
	}
}

func TestAdvanceReportsStageStart(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink, nil,
		Stage{Name: "upload", Weight: 20},
		Stage{Name: "render", Weight: 60},
		Stage{Name: "download", Weight: 20},
	)

	r.Advance("render")
	r.Update(0, "")

	if pct := r.Percent(); pct != 20 {
		t.Errorf("render start = %d, want 20", pct)
	}

	r.Update(100, "")
	if pct := r.Percent(); pct != 80 {
		t.Errorf("render end = %d, want 80", pct)
	}

	r.Advance("download")
	r.Update(100, "")
	if pct := r.Percent(); pct != 100 {
		t.Errorf("last stage full = %d, want 100", pct)
	}
}

func TestUpdateBeforeAdvanceIgnored(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink, nil, Stage{Name: "a", Weight: 1})

	r.Update(50, "early")
	if sink.updates != 0 {
		t.Errorf("expected no sink updates before Advance, got %d", sink.updates)
	}
}

func TestUnknownStageIgnored(t *testing.T) {
	r := New(nil, nil, Stage{Name: "a", Weight: 1})
	r.Advance("a")
	r.Update(40, "")
	before := r.Percent()

	r.Advance("missing")
	if r.Percent() != before {
		t.Errorf("unknown stage changed progress from %d to %d", before, r.Percent())
	}
}

func TestNonMonotonicUpdatesApplied(t *testing.T) {
	r := New(nil, nil, Stage{Name: "work", Weight: 1})
	r.Advance("work")

	r.Update(80, "")
	if r.Percent() != 80 {
		t.Fatalf("pct = %d, want 80", r.Percent())
	}
	r.Update(30, "")
	if r.Percent() != 30 {
		t.Errorf("lower update should apply, got %d", r.Percent())
	}
}

func TestClamping(t *testing.T) {
	r := New(nil, nil, Stage{Name: "work", Weight: 1})
	r.Advance("work")

	r.Update(250, "")
	if r.Percent() != 100 {
		t.Errorf("over-range pct = %d, want clamp to 100", r.Percent())
	}
	r.Update(-40, "")
	if r.Percent() != 0 {
		t.Errorf("under-range pct = %d, want clamp to 0", r.Percent())
	}
}

func TestSinkDeduplication(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink, nil, Stage{Name: "work", Weight: 1})
	r.Advance("work")

	r.Update(50, "halfway")
	count := sink.updates
	r.Update(50, "halfway")
	r.Update(50.2, "halfway")
	if sink.updates != count {
		t.Errorf("identical display should not re-emit, got %d extra", sink.updates-count)
	}

	r.Update(50, "new note")
	if sink.updates != count+1 {
		t.Errorf("note change should emit, updates = %d", sink.updates)
	}
}

func TestFinishForcesHundred(t *testing.T) {
	sink := &recordingSink{}
	r := New(sink, nil, Stage{Name: "work", Weight: 3}, Stage{Name: "rest", Weight: 1})
	r.Start()
	r.Advance("work")
	r.Update(10, "")
	r.Finish("all done")

	pct, note := sink.last()
	if pct != 100 || note != "all done" {
		t.Errorf("finish emitted (%d, %q), want (100, all done)", pct, note)
	}
}

func TestNilReporterSafe(t *testing.T) {
	var r *Reporter
	r.Start()
	r.Advance("x")
	r.Update(50, "")
	r.Finish("")
	if r.Percent() != 0 {
		t.Error("nil reporter should report zero")
	}
}
