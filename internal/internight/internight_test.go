package internight

import (
	"math"
	"testing"
)

func TestFluxToMagnitudeKnownRadii(t *testing.T) {
	for _, radius := range []int{3, 4, 5} {
		mag, err := FluxToMagnitude(1000, radius)
		if err != nil {
			t.Fatalf("radius %d: %v", radius, err)
		}
		if mag <= 0 || mag > 30 {
			t.Fatalf("radius %d: magnitude = %f, out of plausible range", radius, mag)
		}
	}
}

func TestFluxToMagnitudeUnsupportedRadius(t *testing.T) {
	if _, err := FluxToMagnitude(1000, 7); err == nil {
		t.Fatal("expected error for unsupported radius")
	}
}

func TestColorSectionBoundaries(t *testing.T) {
	cases := []struct {
		color float32
		want  int
	}{
		{0.1, 0},
		{0.135, 0},
		{0.2, 1},
		{0.455, 1},
		{0.456, 2},
		{1.063, 2},
		{1.064, 3},
		{7, 3},
		{7.1, 0},
		{0, 0},
	}
	for _, c := range cases {
		if got := colorSection(c.color); got != c.want {
			t.Fatalf("colorSection(%v) = %d, want %d", c.color, got, c.want)
		}
	}
}

func TestPolyfitRecoversExactLine(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{1, 3, 5, 7} // y = 2x + 1
	coeffs := polyfit(xs, ys, 1)
	if len(coeffs) != 2 {
		t.Fatalf("got %d coeffs, want 2", len(coeffs))
	}
	if math.Abs(coeffs[0]-1) > 1e-6 || math.Abs(coeffs[1]-2) > 1e-6 {
		t.Fatalf("coeffs = %v, want [1, 2]", coeffs)
	}
}

func TestEvalPoly(t *testing.T) {
	coeffs := []float64{1, 2, 3} // 1 + 2x + 3x^2
	got := evalPoly(coeffs, 2)
	want := 1 + 2*2 + 3*4.0
	if got != want {
		t.Fatalf("evalPoly = %f, want %f", got, want)
	}
}

func TestMedianFloat64(t *testing.T) {
	if got := medianFloat64([]float64{3, 1, 2}); got != 2 {
		t.Fatalf("median = %f, want 2", got)
	}
	if got := medianFloat64([]float64{1, 2, 3, 4}); got != 2.5 {
		t.Fatalf("median = %f, want 2.5", got)
	}
	if got := medianFloat64(nil); got != 0 {
		t.Fatalf("median of empty = %f, want 0", got)
	}
}

func TestNormalizeLowAttendanceZeroed(t *testing.T) {
	inputs := []StarInput{
		{StarNumber: 1, MedianFlux: 100, Attendance: 0.1, MeasuredRI: 0.3, ReferenceADU: 200},
	}
	out := Normalize(inputs, 5)
	if len(out) != 1 {
		t.Fatalf("got %d outputs, want 1", len(out))
	}
	if out[0].NormalizedMedianFlux != 0 || out[0].NormFactor != 0 {
		t.Fatalf("expected zeroed output for low attendance, got %+v", out[0])
	}
}

func TestNormalizeAppliesLPVOverride(t *testing.T) {
	inputs := []StarInput{
		{StarNumber: 814, MedianFlux: 100, Attendance: 1, MeasuredRI: float32(math.NaN()), ReferenceADU: 200},
		{StarNumber: 2, MedianFlux: 150, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 300},
		{StarNumber: 3, MedianFlux: 160, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 310},
		{StarNumber: 4, MedianFlux: 170, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 320},
	}
	out := Normalize(inputs, 5)
	var lpv *StarOutput
	for i := range out {
		if out[i].StarNumber == 814 {
			lpv = &out[i]
		}
	}
	if lpv == nil {
		t.Fatal("missing output for LPV star 814")
	}
	if lpv.UsedMeanRI != lpvOverrides[814] {
		t.Fatalf("usedMeanRI = %f, want override %f", lpv.UsedMeanRI, lpvOverrides[814])
	}
}

func TestNormalizeOrdersOutputsByStarNumber(t *testing.T) {
	inputs := []StarInput{
		{StarNumber: 3, MedianFlux: 100, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 200},
		{StarNumber: 1, MedianFlux: 100, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 200},
		{StarNumber: 2, MedianFlux: 100, Attendance: 1, MeasuredRI: 0.3, ReferenceADU: 200},
	}
	out := Normalize(inputs, 5)
	for i := 1; i < len(out); i++ {
		if out[i].StarNumber < out[i-1].StarNumber {
			t.Fatalf("outputs not sorted by star number: %+v", out)
		}
	}
}
