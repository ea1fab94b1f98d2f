package combine

import (
	"testing"

	"github.com/LutherAstrophysics/m23/internal/fits"
)

func TestWindows(t *testing.T) {
	cases := []struct {
		n, size int
		want    [][2]int
	}{
		{10, 5, [][2]int{{0, 5}, {5, 10}}},
		{9, 5, [][2]int{{0, 5}}},
		{0, 5, nil},
		{5, 0, nil},
	}
	for _, c := range cases {
		got := Windows(c.n, c.size)
		if len(got) != len(c.want) {
			t.Fatalf("Windows(%d,%d): got %v want %v", c.n, c.size, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("Windows(%d,%d)[%d]: got %v want %v", c.n, c.size, i, got[i], c.want[i])
			}
		}
	}
}

func TestSum(t *testing.T) {
	a := fits.NewImageFromNaxisn([]int32{2, 2}, []float32{1, 2, 3, 4})
	b := fits.NewImageFromNaxisn([]int32{2, 2}, []float32{10, 20, 30, 40})

	out, err := Sum([]*fits.Image{a, b})
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{11, 22, 33, 44}
	for i, v := range want {
		if out.Data[i] != v {
			t.Fatalf("Sum()[%d] = %f, want %f", i, out.Data[i], v)
		}
	}
}

func TestSumDimensionMismatch(t *testing.T) {
	a := fits.NewImageFromNaxisn([]int32{2, 2}, nil)
	b := fits.NewImageFromNaxisn([]int32{3, 3}, nil)
	if _, err := Sum([]*fits.Image{a, b}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestSumEmpty(t *testing.T) {
	if _, err := Sum(nil); err == nil {
		t.Fatal("expected error for empty frame list")
	}
}
