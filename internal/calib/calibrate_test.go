package calib

import (
	"math"
	"testing"

	"github.com/LutherAstrophysics/m23/internal/fits"
)

func flatImage(naxisn []int32, val float32) *fits.Image {
	n := int32(1)
	for _, a := range naxisn {
		n *= a
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = val
	}
	return fits.NewImageFromNaxisn(naxisn, data)
}

func TestBuildMasterDarkMedian(t *testing.T) {
	naxisn := []int32{2, 2}
	d1 := flatImage(naxisn, 10)
	d2 := flatImage(naxisn, 20)
	d3 := flatImage(naxisn, 30)

	master, err := BuildMasterDark([]*fits.Image{d1, d2, d3})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range master.Data {
		if v != 20 {
			t.Fatalf("master dark pixel = %f, want 20 (median of 10,20,30)", v)
		}
	}
}

func TestBuildMasterDarkRejectsEmpty(t *testing.T) {
	if _, err := BuildMasterDark(nil); err == nil {
		t.Fatal("expected error for empty dark list")
	}
}

func TestBuildMasterDarkRejectsDimensionMismatch(t *testing.T) {
	d1 := flatImage([]int32{2, 2}, 10)
	d2 := flatImage([]int32{3, 3}, 10)
	if _, err := BuildMasterDark([]*fits.Image{d1, d2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestBuildMasterFlatSubtractsDark(t *testing.T) {
	naxisn := []int32{2, 2}
	dark := flatImage(naxisn, 5)
	f1 := flatImage(naxisn, 105)
	f2 := flatImage(naxisn, 105)

	master, err := BuildMasterFlat([]*fits.Image{f1, f2}, dark)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range master.Data {
		if v != 100 {
			t.Fatalf("master flat pixel = %f, want 100 (105 median - 5 dark)", v)
		}
	}
}

func TestCenterSquareSizeScalesWithWidth(t *testing.T) {
	side, offset := centerSquareSize(1024)
	if side != 175 || offset != 425 {
		t.Fatalf("1024-width: got side=%d offset=%d, want 175,425", side, offset)
	}
	side, offset = centerSquareSize(2048)
	if side != 350 || offset != 850 {
		t.Fatalf("2048-width: got side=%d offset=%d, want 350,850", side, offset)
	}
}

func TestCalibratorCalibrateUniformFields(t *testing.T) {
	naxisn := []int32{1024, 1024}
	dark := flatImage(naxisn, 10)
	flat := flatImage(naxisn, 100)
	raw := flatImage(naxisn, 110)

	c := NewCalibrator(dark, flat, CropRegion{}, nil)
	out, err := c.Calibrate(raw)
	if err != nil {
		t.Fatal(err)
	}
	// flatCenterMean == 100 (uniform flat), so ratio == 1, and
	// calibrated == (raw - dark) == 100 everywhere.
	for i, v := range out.Data {
		if v != 100 {
			t.Fatalf("calibrated pixel[%d] = %f, want 100", i, v)
		}
	}
}

func TestCalibratorRepairsBadPixelWhenEnabled(t *testing.T) {
	naxisn := []int32{10, 10}
	dark := flatImage(naxisn, 0)
	flat := flatImage(naxisn, 100)
	raw := flatImage(naxisn, 100)
	raw.Data[5*10+5] = 10000 // single bright outlier, away from edges

	c := NewCalibrator(dark, flat, CropRegion{}, nil)
	c.BadPixelSigmaLow, c.BadPixelSigmaHigh = 3, 3
	out, err := c.Calibrate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[5*10+5] > 200 {
		t.Fatalf("outlier pixel = %f, want repaired to near local median (~100)", out.Data[5*10+5])
	}
}

func TestCalibratorFitsGaussianForNeighboringHotPixels(t *testing.T) {
	naxisn := []int32{15, 15}
	width := int(naxisn[0])
	dark := flatImage(naxisn, 10)
	dark.Data[7*width+7] = 1000 // flagged by the master-dark 3-sigma hot pixel scan
	flat := flatImage(naxisn, 100)
	raw := flatImage(naxisn, 100)
	raw.Data[7*width+7] = 5000 // the pixel itself and its 4-neighbors read abnormally high
	raw.Data[6*width+7] = 3000
	raw.Data[8*width+7] = 3000
	raw.Data[7*width+6] = 3000
	raw.Data[7*width+8] = 3000

	c := NewCalibrator(dark, flat, CropRegion{}, nil)
	c.HotPixelCorrection = true
	out, err := c.Calibrate(raw)
	if err != nil {
		t.Fatal(err)
	}
	v := out.Data[7*width+7]
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		t.Fatalf("gaussianFitCenter produced a non-finite value: %v", v)
	}
	if v < 0 || v > 6000 {
		t.Fatalf("fitted center value = %f, want within the data's own range", v)
	}
}

func TestCalibratorLeavesBadPixelWhenDisabled(t *testing.T) {
	naxisn := []int32{10, 10}
	dark := flatImage(naxisn, 0)
	flat := flatImage(naxisn, 100)
	raw := flatImage(naxisn, 100)
	raw.Data[5*10+5] = 10000

	c := NewCalibrator(dark, flat, CropRegion{}, nil)
	out, err := c.Calibrate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[5*10+5] != 10000 {
		t.Fatalf("outlier pixel = %f, want left untouched (10000) with repair disabled", out.Data[5*10+5])
	}
}

func TestCalibratorCalibrateRejectsDimensionMismatch(t *testing.T) {
	dark := flatImage([]int32{2, 2}, 10)
	flat := flatImage([]int32{2, 2}, 100)
	raw := flatImage([]int32{3, 3}, 110)

	c := NewCalibrator(dark, flat, CropRegion{}, nil)
	if _, err := c.Calibrate(raw); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestCalibratorAppliesCropSentinel(t *testing.T) {
	naxisn := []int32{10, 10}
	dark := flatImage(naxisn, 0)
	flat := flatImage(naxisn, 100)
	raw := flatImage(naxisn, 50)

	crop := CropRegion{Polygons: [][]Point{{
		{X: 2, Y: 2}, {X: 6, Y: 2}, {X: 6, Y: 6}, {X: 2, Y: 6},
	}}}
	c := NewCalibrator(dark, flat, crop, nil)
	out, err := c.Calibrate(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.Data[4*10+4] != 1 {
		t.Fatalf("cropped pixel = %f, want sentinel 1", out.Data[4*10+4])
	}
	if out.Data[0] == 1 {
		t.Fatal("pixel outside crop region should not be sentineled")
	}
}

func TestSubtract(t *testing.T) {
	a := []float32{5, 10, 15}
	b := []float32{1, 2, 3}
	c := make([]float32, 3)
	Subtract(c, a, b)
	want := []float32{4, 8, 12}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("Subtract()[%d] = %f, want %f", i, c[i], want[i])
		}
	}
}

func TestDivideKeepsOriginalOnNonPositiveDenominator(t *testing.T) {
	as := []float32{10, 20}
	bs := []float32{0, 5}
	cs := make([]float32, 2)
	Divide(cs, as, bs, 10)
	if cs[0] != 10 {
		t.Fatalf("cs[0] = %f, want 10 (original kept for non-positive denominator)", cs[0])
	}
	if cs[1] != 40 {
		t.Fatalf("cs[1] = %f, want 40 (20*10/5)", cs[1])
	}
}

func TestBadPixelMapFlagsOutlier(t *testing.T) {
	width := int32(10)
	height := 10
	data := make([]float32, int(width)*height)
	for i := range data {
		data[i] = 100
	}
	data[5*int(width)+5] = 10000 // single bright outlier

	bpm := BadPixelMap(data, width, 3, 3)
	found := false
	for _, idx := range bpm {
		if idx == 5*width+5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bad pixel map to flag the outlier, got %v", bpm)
	}
}
