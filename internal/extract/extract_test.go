package extract

import "testing"

func TestComputeBackgroundMapUniform(t *testing.T) {
	width, height := 64, 64
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 100
	}
	bg := ComputeBackgroundMap(data, width, height)
	if got := bg.At(0, 0); got != 100 {
		t.Fatalf("background = %f, want 100", got)
	}
}

func TestComputeBackgroundMapIgnoresZeros(t *testing.T) {
	width, height := 64, 64
	data := make([]float32, width*height)
	for i := range data {
		if i%2 == 0 {
			data[i] = 50
		}
		// odd indices left at 0, simulating crop-masked pixels
	}
	bg := ComputeBackgroundMap(data, width, height)
	if got := bg.At(0, 0); got != 50 {
		t.Fatalf("background = %f, want 50 (zeros should be excluded)", got)
	}
}

func TestRefineCentersFallsBackWithoutSignal(t *testing.T) {
	width, height := 20, 20
	data := make([]float32, width*height)
	refs := []RefStar{{Number: 1, X: 10, Y: 10}}
	centers := RefineCenters(data, width, height, refs)
	if centers[0].X != 10 || centers[0].Y != 10 {
		t.Fatalf("expected fallback to catalog position, got %+v", centers[0])
	}
}

func TestRefineCentersCentroidsOnBrightSpot(t *testing.T) {
	width, height := 20, 20
	data := make([]float32, width*height)
	// place a bright pixel one step right of the catalog guess
	data[10*width+11] = 1000
	refs := []RefStar{{Number: 1, X: 10, Y: 10}}
	centers := RefineCenters(data, width, height, refs)
	if centers[0].X <= 10 {
		t.Fatalf("expected centroid to shift toward x=11, got %f", centers[0].X)
	}
}

func TestFluxForRadiusSubtractsBackground(t *testing.T) {
	width, height := 64, 64
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 10 // uniform background
	}
	cx, cy := 32, 32
	data[cy*width+cx] = 1010 // star signal atop the background
	bg := ComputeBackgroundMap(data, width, height)
	centers := []StarCenter{{X: float32(cx), Y: float32(cy)}}

	fluxes := FluxForRadius(3, centers, data, width, height, bg)
	if fluxes[0].Subtracted <= 0 {
		t.Fatalf("expected positive background-subtracted flux, got %f", fluxes[0].Subtracted)
	}
}

func TestExtractAllProducesOneEntryPerStar(t *testing.T) {
	width, height := 64, 64
	data := make([]float32, width*height)
	for i := range data {
		data[i] = 5
	}
	refs := []RefStar{{Number: 1, X: 10, Y: 10}, {Number: 2, X: 40, Y: 40}}
	out := ExtractAll(data, width, height, refs, []int{3, 5})
	if len(out) != len(refs) {
		t.Fatalf("got %d extractions, want %d", len(out), len(refs))
	}
	for _, e := range out {
		if _, ok := e.RadiiADU[3]; !ok {
			t.Fatalf("missing radius 3 flux for star %d", e.StarNumber)
		}
		if _, ok := e.RadiiADU[5]; !ok {
			t.Fatalf("missing radius 5 flux for star %d", e.StarNumber)
		}
	}
}
