package intranight

import "testing"

func TestAnchorIndices(t *testing.T) {
	got := anchorIndices(10)
	want := []int{2, 4, 6, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestNormalizeConstantFluxYieldsUnitFactor(t *testing.T) {
	refPositions := []StarPosition{{X: 10, Y: 10}, {X: 20, Y: 20}}
	images := make([]Image, 10)
	for i := range images {
		images[i] = Image{
			ADU:       []float32{100, 200},
			Positions: []StarPosition{{X: 10, Y: 10}, {X: 20, Y: 20}},
		}
	}

	result := Normalize(images, refPositions, 1024, 1024)
	if len(result.NormFactors) != 10 {
		t.Fatalf("got %d norm factors, want 10", len(result.NormFactors))
	}
	for i, f := range result.NormFactors {
		if f < 0.99 || f > 1.01 {
			t.Fatalf("normFactors[%d] = %f, want ~1.0 for constant flux", i, f)
		}
	}
	if len(result.StarFluxes) != 2 {
		t.Fatalf("got %d star flux series, want 2", len(result.StarFluxes))
	}
}

func TestNormalizeMasksDriftedPosition(t *testing.T) {
	refPositions := []StarPosition{{X: 10, Y: 10}}
	images := make([]Image, 10)
	for i := range images {
		images[i] = Image{ADU: []float32{100}, Positions: []StarPosition{{X: 10, Y: 10}}}
	}
	// Drift star 0 far from the catalog position in one image; that star
	// is masked out of that image's own scale factor, leaving it no
	// retained scales and so a norm factor of 0.
	images[2].Positions[0] = StarPosition{X: 50, Y: 50}

	result := Normalize(images, refPositions, 1024, 1024)
	if len(result.NormFactors) != 10 {
		t.Fatalf("got %d norm factors, want 10", len(result.NormFactors))
	}
	if result.NormFactors[2] != 0 {
		t.Fatalf("drifted image norm factor = %f, want 0", result.NormFactors[2])
	}
}

func TestNormalizeNegativeFluxClampedToZero(t *testing.T) {
	refPositions := []StarPosition{{X: 10, Y: 10}}
	images := []Image{
		{ADU: []float32{-5}, Positions: []StarPosition{{X: 10, Y: 10}}},
		{ADU: []float32{100}, Positions: []StarPosition{{X: 10, Y: 10}}},
		{ADU: []float32{100}, Positions: []StarPosition{{X: 10, Y: 10}}},
		{ADU: []float32{100}, Positions: []StarPosition{{X: 10, Y: 10}}},
		{ADU: []float32{100}, Positions: []StarPosition{{X: 10, Y: 10}}},
	}
	result := Normalize(images, refPositions, 1024, 1024)
	if result.StarFluxes[0][0] < 0 {
		t.Fatalf("expected negative flux clamped to 0, got %f", result.StarFluxes[0][0])
	}
}

func TestCornerQuadrilateralMaskExcludesNearEdgeStars(t *testing.T) {
	refPositions := []StarPosition{
		{X: 10, Y: 10},
		{X: 1013, Y: 10},
		{X: 1013, Y: 1013},
		{X: 10, Y: 1013},
		{X: 15, Y: 15},
		{X: 30, Y: 30},
	}
	keep := cornerQuadrilateralMask(refPositions, 1024, 1024)
	if keep[4] {
		t.Fatalf("expected star at (15,15) to be excluded, within 12px margin of the top-left edge")
	}
	if !keep[5] {
		t.Fatalf("expected star at (30,30) to be included, outside the 12px margin")
	}
}

func TestCornerQuadrilateralMaskNoOpsBelowFourStars(t *testing.T) {
	refPositions := []StarPosition{{X: 5, Y: 5}, {X: 6, Y: 6}}
	keep := cornerQuadrilateralMask(refPositions, 1024, 1024)
	for i, k := range keep {
		if !k {
			t.Fatalf("keep[%d] = false, want true with fewer than 4 catalog stars", i)
		}
	}
}

func TestSortedCopyDoesNotMutateInput(t *testing.T) {
	input := []float32{3, 1, 2}
	out := SortedCopy(input)
	if input[0] != 3 {
		t.Fatalf("input was mutated: %v", input)
	}
	want := []float32{1, 2, 3}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v, want %v", out, want)
		}
	}
}
