package m23file

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateAndParseRawName(t *testing.T) {
	name := GenerateRawName(7, 42)
	parsed, ok := Parse(name)
	if !ok {
		t.Fatalf("failed to parse generated name %q", name)
	}
	if parsed.Kind != KindRaw {
		t.Fatalf("kind = %v, want KindRaw", parsed.Kind)
	}
	if parsed.ImgNumber != 42 {
		t.Fatalf("imgNumber = %d, want 42", parsed.ImgNumber)
	}
}

func TestGenerateAndParseFluxLogCombinedName(t *testing.T) {
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	name := GenerateFluxLogCombinedName(date, 7.5, 123)
	parsed, ok := Parse(name)
	if !ok {
		t.Fatalf("failed to parse generated name %q", name)
	}
	if parsed.Kind != KindFluxLogCombined {
		t.Fatalf("kind = %v, want KindFluxLogCombined", parsed.Kind)
	}
	if parsed.StarNumber != 123 {
		t.Fatalf("starNumber = %d, want 123", parsed.StarNumber)
	}
	if !parsed.NightDate.Equal(date) {
		t.Fatalf("nightDate = %v, want %v", parsed.NightDate, date)
	}
}

func TestGenerateAndParseColorNormalizedName(t *testing.T) {
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	name := GenerateColorNormalizedName(date, "Three")
	parsed, ok := Parse(name)
	if !ok {
		t.Fatalf("failed to parse generated name %q", name)
	}
	if parsed.Kind != KindColorNormalized {
		t.Fatalf("kind = %v, want KindColorNormalized", parsed.Kind)
	}
	if parsed.RadiusWord != "Three" {
		t.Fatalf("radiusWord = %q, want Three", parsed.RadiusWord)
	}
}

func TestParseRejectsUnknownName(t *testing.T) {
	if _, ok := Parse("not_a_recognized_file.txt"); ok {
		t.Fatal("expected no match for unrecognized file name")
	}
}

func TestKindString(t *testing.T) {
	if KindRaw.String() != "Raw" {
		t.Fatalf("KindRaw.String() = %q, want Raw", KindRaw.String())
	}
	if Kind(999).String() != "Unknown" {
		t.Fatalf("unknown kind string = %q, want Unknown", Kind(999).String())
	}
}

func TestFluxLogCombinedRoundTrip(t *testing.T) {
	var buf strings.Builder
	f := FluxLogCombined{
		StartImg: 1, EndImg: 3, ReferenceLogUsed: "ref.txt",
		X: 10.5, Y: 20.5, Flux: []float32{100, 200, 300},
	}
	if err := WriteFluxLogCombined(&buf, f); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFluxLogCombined(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d flux values, want 3", len(got))
	}
	for i, v := range []float32{100, 200, 300} {
		if got[i] != v {
			t.Fatalf("flux[%d] = %f, want %f", i, got[i], v)
		}
	}
}

func TestAttendance(t *testing.T) {
	cases := []struct {
		flux []float32
		want float64
	}{
		{[]float32{1, 2, 3, 4}, 1.0},
		{[]float32{1, 0, -1, 4}, 0.5},
		{nil, 0},
	}
	for _, c := range cases {
		if got := Attendance(c.flux); got != c.want {
			t.Fatalf("Attendance(%v) = %f, want %f", c.flux, got, c.want)
		}
	}
}

func TestColorNormalizedWriteIsSortedByStarNumber(t *testing.T) {
	var buf strings.Builder
	data := ColorNormalizedData{
		3: {NormalizedMedianFlux: 1},
		1: {NormalizedMedianFlux: 2},
		2: {NormalizedMedianFlux: 3},
	}
	date := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	if err := WriteColorNormalized(&buf, data, date); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	idx1 := strings.Index(out, "\n       1")
	idx2 := strings.Index(out, "\n       2")
	idx3 := strings.Index(out, "\n       3")
	if !(idx1 < idx2 && idx2 < idx3) {
		t.Fatalf("expected star rows sorted ascending, got:\n%s", out)
	}
}

func TestNormFactorRoundTrip(t *testing.T) {
	var buf strings.Builder
	factors := []float32{1.1, 2.2, 3.3}
	if err := WriteNormFactor(&buf, factors); err != nil {
		t.Fatal(err)
	}
	got, err := ReadNormFactor(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d factors, want 3", len(got))
	}
}

func TestReadReferenceLogSkipsHeaderAndNonDataLines(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < referenceLogHeaderRows; i++ {
		sb.WriteString("header line\n")
	}
	sb.WriteString("Some text header with no digits\n")
	sb.WriteString("10.0 20.0 1.5 3.2 100.0 5000.0\n")
	sb.WriteString("30.0 40.0 1.6 3.3 110.0 6000.0\n")

	stars, err := ReadReferenceLog(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(stars) != 2 {
		t.Fatalf("got %d stars, want 2", len(stars))
	}
	if stars[1].X != 10.0 {
		t.Fatalf("star 1 X = %f, want 10.0", stars[1].X)
	}
}

func TestReadRIColorTable(t *testing.T) {
	input := "1 0.5\n2 1.2\n"
	table, err := ReadRIColorTable(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if table[1] != 0.5 || table[2] != 1.2 {
		t.Fatalf("got %v, want {1:0.5, 2:1.2}", table)
	}
}

func TestReadRIColorTableRejectsMalformedLine(t *testing.T) {
	if _, err := ReadRIColorTable(strings.NewReader("1 0.5\nbad-line\n")); err == nil {
		t.Fatal("expected error for malformed line")
	}
}

func TestLogCombinedWriteIncludesAllRadii(t *testing.T) {
	var buf strings.Builder
	data := LogCombinedData{
		1: {X: 10, Y: 20, RadiiADU: map[int]float32{3: 100, 5: 150}},
	}
	if err := WriteLogCombined(&buf, data, "m23_7.0-0001.fit", []int{3, 5}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Star ADU 3") || !strings.Contains(out, "Star ADU 5") {
		t.Fatalf("expected both radius columns in header, got:\n%s", out)
	}
}
