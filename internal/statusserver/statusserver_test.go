package statusserver

import (
	"errors"
	"testing"

	"github.com/LutherAstrophysics/m23/internal/night"
)

func TestTrackerSetCreatesEntry(t *testing.T) {
	tr := NewTracker()
	tr.Set("2024-01-02", night.StageCalibrated, nil)

	s, ok := tr.get("2024-01-02")
	if !ok {
		t.Fatal("expected entry for date")
	}
	if s.Stage != night.StageCalibrated.String() {
		t.Fatalf("stage = %q, want %q", s.Stage, night.StageCalibrated.String())
	}
	if s.Error != "" {
		t.Fatalf("error = %q, want empty", s.Error)
	}
}

func TestTrackerSetRecordsError(t *testing.T) {
	tr := NewTracker()
	tr.Set("2024-01-02", night.StageFailed, errors.New("boom"))

	s, ok := tr.get("2024-01-02")
	if !ok {
		t.Fatal("expected entry for date")
	}
	if s.Error != "boom" {
		t.Fatalf("error = %q, want boom", s.Error)
	}
}

func TestTrackerGetUnknownDate(t *testing.T) {
	tr := NewTracker()
	if _, ok := tr.get("no-such-date"); ok {
		t.Fatal("expected no entry for unknown date")
	}
}

func TestTrackerAppendLogTrimsToMax(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 5; i++ {
		tr.AppendLog("2024-01-02", "line", 3)
	}
	s, ok := tr.get("2024-01-02")
	if !ok {
		t.Fatal("expected entry for date")
	}
	if len(s.LogLines) != 3 {
		t.Fatalf("got %d log lines, want 3", len(s.LogLines))
	}
}

func TestTrackerListReturnsAllDates(t *testing.T) {
	tr := NewTracker()
	tr.Set("2024-01-01", night.StagePrepared, nil)
	tr.Set("2024-01-02", night.StageDone, nil)
	if got := len(tr.list()); got != 2 {
		t.Fatalf("got %d entries, want 2", got)
	}
}
