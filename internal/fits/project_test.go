package fits

import (
	"testing"

	"github.com/LutherAstrophysics/m23/internal/star"
)

func TestProjectIdentityTransformPreservesInterior(t *testing.T) {
	naxisn := []int32{4, 4}
	data := make([]float32, 16)
	for i := range data {
		data[i] = float32(i)
	}
	img := NewImageFromNaxisn(naxisn, data)

	out, err := img.Project(naxisn, star.IdentityTransform2D(), -1)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < 15; i++ {
		if out.Data[i] != data[i] {
			t.Fatalf("Project()[%d] = %f, want %f (identity transform)", i, out.Data[i], data[i])
		}
	}
}

func TestProjectFillsOutOfBoundsSentinel(t *testing.T) {
	naxisn := []int32{4, 4}
	data := make([]float32, 16)
	img := NewImageFromNaxisn(naxisn, data)

	trans := star.Transform2D{A: 1, E: 1, C: 100, F: 100} // shift far outside source
	out, err := img.Project(naxisn, trans, -99)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Data {
		if v != -99 {
			t.Fatalf("Project()[%d] = %f, want sentinel -99", i, v)
		}
	}
}

func TestProjectPreservesIDAndExposure(t *testing.T) {
	naxisn := []int32{4, 4}
	img := NewImageFromNaxisn(naxisn, make([]float32, 16))
	img.ID = 7
	img.Exposure = 12.5

	out, err := img.Project(naxisn, star.IdentityTransform2D(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != 7 {
		t.Fatalf("ID = %d, want 7", out.ID)
	}
	if out.Exposure != 12.5 {
		t.Fatalf("Exposure = %f, want 12.5", out.Exposure)
	}
}
