package night

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/LutherAstrophysics/m23/internal/extract"
	"github.com/LutherAstrophysics/m23/internal/intranight"
)

func TestStageString(t *testing.T) {
	cases := map[Stage]string{
		StagePrepared:         "prepared",
		StageCalibrated:       "calibrated",
		StageAlignedCombined:  "aligned-combined",
		StageExtracted:        "extracted",
		StageIntraNormalized:  "intra-normalized",
		StageInterNormalized:  "inter-normalized",
		StageDone:             "done",
		StageFailed:           "failed",
	}
	for stage, want := range cases {
		if got := stage.String(); got != want {
			t.Fatalf("Stage(%d).String() = %q, want %q", stage, got, want)
		}
	}
	if got := Stage(999).String(); got != "unknown" {
		t.Fatalf("unknown stage string = %q, want unknown", got)
	}
}

func TestDefaultMaxConcurrentNightsIsPositive(t *testing.T) {
	got := DefaultMaxConcurrentNights(1024, 1024)
	if got < 1 {
		t.Fatalf("DefaultMaxConcurrentNights() = %d, want >= 1", got)
	}
}

func TestDefaultMaxConcurrentNightsHandlesZeroDimensions(t *testing.T) {
	got := DefaultMaxConcurrentNights(0, 0)
	if got != 1 {
		t.Fatalf("DefaultMaxConcurrentNights(0,0) = %d, want 1", got)
	}
}

func TestOutputFolderUsesISODate(t *testing.T) {
	settings := Settings{OutputPath: "/data/out"}
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	got := OutputFolder(settings, date)
	want := filepath.Join("/data/out", "2024-03-14")
	if got != want {
		t.Fatalf("OutputFolder() = %q, want %q", got, want)
	}
}

func TestErrNightFailedWrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("disk full")
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	err := &ErrNightFailed{Date: date, Stage: StageCalibrated, Err: underlying}

	if !errors.Is(err, underlying) {
		t.Fatal("expected errors.Is to unwrap to the underlying error")
	}
	if err.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}

func TestClearDirRemovesOnlyFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	subdir := filepath.Join(dir, "sub")
	if err := os.Mkdir(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	if err := clearDir(dir); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		t.Fatalf("expected only the subdirectory to remain, got %v", entries)
	}
}

func TestExtractionRefStarsSortedByNumber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reference.txt")

	var lines []string
	for i := 0; i < 9; i++ {
		lines = append(lines, "header")
	}
	lines = append(lines, "30.0 40.0 1.5 3.2 100.0 5000.0")
	lines = append(lines, "10.0 20.0 1.5 3.2 100.0 5000.0")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	settings := Settings{ReferenceFile: path}
	refs, err := extractionRefStars(settings)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %d ref stars, want 2", len(refs))
	}
	for i := 1; i < len(refs); i++ {
		if refs[i].Number < refs[i-1].Number {
			t.Fatalf("ref stars not sorted by number: %+v", refs)
		}
	}
}

func TestWriteFluxLogCombinedOnePerStar(t *testing.T) {
	dir := t.TempDir()
	refStars := []extract.RefStar{{Number: 5, X: 1, Y: 2}, {Number: 7, X: 3, Y: 4}}
	intra := intranight.Result{
		StarFluxes: [][]float32{{100, 200}, {300, 400}},
	}

	if err := writeFluxLogCombined(dir, refStars, intra); err != nil {
		t.Fatal(err)
	}

	for _, want := range []int{5, 7} {
		path := filepath.Join(dir, strconv.Itoa(want)+".txt")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected flux log file for star %d: %v", want, err)
		}
	}
}
