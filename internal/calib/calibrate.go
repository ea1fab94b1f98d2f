// Package calib builds master calibration frames (dark, flat) and applies
// them to raw light frames, following the classical CCD calibration recipe
// from Berry & Burnell's Handbook of Astronomical Image Processing:
//
//	calibrated = (mean(center of flat) / flat) * (raw - dark)
//
// Grounded on the teacher's internal/ops/pre/badpixels.go Subtract/Divide
// pixel loops and internal/ops/pre/preprocess.go OpCalibrate parallel-load
// shape, and on original_source/m23/calibrate/calibration.py for the exact
// arithmetic (including the historical "highValue" hot-pixel threshold,
// which the source computes from the raw frame, not the calibrated one).
package calib

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/optimize"

	"github.com/LutherAstrophysics/m23/internal/fits"
	"github.com/LutherAstrophysics/m23/internal/median"
	"github.com/LutherAstrophysics/m23/internal/qsort"
)

var ErrInsufficientCalibration = errors.New("insufficient calibration frames")
var ErrCalibrationDimensionMismatch = errors.New("calibration dimension mismatch")

// CropRegion is an ordered list of polygons (sequences of integer (x,y)
// vertices) whose interior pixels are overwritten with the sentinel value 1
// after calibration arithmetic.
type CropRegion struct {
	Polygons [][]Point
}

type Point struct{ X, Y int32 }

// RawFrameTransform is an optional hook run on the raw frame before
// calibration arithmetic (the coma-correction extension point of §9 of the
// design notes; identity when nil).
type RawFrameTransform func(raw *fits.Image) (*fits.Image, error)

// BuildMasterDark computes the per-pixel median over a set of dark frames,
// all of which must share the same dimensions as the target raw frames.
func BuildMasterDark(darks []*fits.Image) (*fits.Image, error) {
	if len(darks) == 0 {
		return nil, fmt.Errorf("%w: no dark frames", ErrInsufficientCalibration)
	}
	naxisn := darks[0].Naxisn
	for _, d := range darks {
		if !fits.EqualInt32Slice(d.Naxisn, naxisn) {
			return nil, fmt.Errorf("%w: dark frame %d has shape %s, want %s", ErrCalibrationDimensionMismatch, d.ID, d.DimensionsToString(), darks[0].DimensionsToString())
		}
	}
	out := fits.NewImageFromNaxisn(naxisn, nil)
	out.Header = darks[0].Header
	perPixelMedian(out.Data, darks)
	return out, nil
}

// BuildMasterFlat computes the per-pixel median of a set of flat frames
// minus the master dark. Classical bias frames are not used; dark frames
// substitute for flat-darks by design.
func BuildMasterFlat(flats []*fits.Image, masterDark *fits.Image) (*fits.Image, error) {
	if len(flats) == 0 {
		return nil, fmt.Errorf("%w: no flat frames", ErrInsufficientCalibration)
	}
	naxisn := flats[0].Naxisn
	for _, fl := range flats {
		if !fits.EqualInt32Slice(fl.Naxisn, naxisn) {
			return nil, fmt.Errorf("%w: flat frame %d has shape %s, want %s", ErrCalibrationDimensionMismatch, fl.ID, fl.DimensionsToString(), flats[0].DimensionsToString())
		}
	}
	if !fits.EqualInt32Slice(masterDark.Naxisn, naxisn) {
		return nil, fmt.Errorf("%w: master dark shape %s does not match flats %s", ErrCalibrationDimensionMismatch, masterDark.DimensionsToString(), flats[0].DimensionsToString())
	}
	out := fits.NewImageFromNaxisn(naxisn, nil)
	out.Header = flats[0].Header
	perPixelMedian(out.Data, flats)
	for i := range out.Data {
		out.Data[i] -= masterDark.Data[i]
	}
	return out, nil
}

// perPixelMedian fills out with the per-pixel median across imgs, processed
// in parallel stripes across available CPUs.
func perPixelMedian(out []float32, imgs []*fits.Image) {
	n := len(out)
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	stride := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += stride {
		end := start + stride
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			column := make([]float32, len(imgs))
			for i := start; i < end; i++ {
				for k, img := range imgs {
					column[k] = img.Data[i]
				}
				out[i] = qsort.QSelectMedianFloat32(column)
			}
		}(start, end)
	}
	wg.Wait()
}

// centerSquareSize returns the side length and top-left offset of the
// centered square region used to average the master flat, per
// original_source/m23/calibrate/calibration.py getCenterAverage: a 175px
// square at (425,425) for 1024-square frames, 350px at (850,850) for
// 2048-square frames.
func centerSquareSize(width int32) (side, offset int32) {
	if width >= 2048 {
		return 350, 850
	}
	return 175, 425
}

// flatCenterMean computes the arithmetic mean over the centered square
// region of the master flat. Frames too small to hold the standard square
// use the largest centered square that fits.
func flatCenterMean(flat *fits.Image) float32 {
	side, offset := centerSquareSize(flat.Naxisn[0])
	width, height := flat.Naxisn[0], flat.Naxisn[1]
	xOff, yOff := offset, offset
	if offset+side > width || offset+side > height {
		side = width
		if height < side {
			side = height
		}
		xOff, yOff = (width-side)/2, (height-side)/2
	}
	var sum float64
	var count int64
	for y := yOff; y < yOff+side; y++ {
		for x := xOff; x < xOff+side; x++ {
			sum += float64(flat.Data[y*width+x])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float32(sum / float64(count))
}

// Calibrator applies master dark/flat calibration to raw frames.
type Calibrator struct {
	MasterDark *fits.Image
	MasterFlat *fits.Image
	Crop       CropRegion
	Transform  RawFrameTransform

	// HotPixelCorrection enables the historically-inactive post-calibration
	// hot pixel repair step (§4.2 step 5). Defaults to false, matching
	// production behavior where the recalibration call was wired but never
	// invoked (original_source/m23/calibrate/calibration.py has the call
	// commented out in applyCalibration).
	HotPixelCorrection bool

	// BadPixelSigmaLow/BadPixelSigmaHigh enable a second, independent
	// bad-pixel pass over the calibrated frame: pixels whose 3x3
	// median-filter residual falls outside [-sigmaLow,+sigmaHigh] standard
	// deviations are replaced by their local median. Zero disables it.
	// Grounded on the teacher's OpBadPixel stack operation, which runs the
	// same BadPixelMap+repair over working frames independently of dark/flat
	// calibration.
	BadPixelSigmaLow  float32
	BadPixelSigmaHigh float32

	flatCenterMean float32
	flatMeanOnce   sync.Once
}

func NewCalibrator(dark, flat *fits.Image, crop CropRegion, transform RawFrameTransform) *Calibrator {
	return &Calibrator{MasterDark: dark, MasterFlat: flat, Crop: crop, Transform: transform}
}

// Calibrate applies dark/flat calibration to raw frame r, returning a new
// image. See SPEC_FULL.md §4.2 for the full contract.
func (c *Calibrator) Calibrate(r *fits.Image) (*fits.Image, error) {
	raw := r
	var err error
	if c.Transform != nil {
		raw, err = c.Transform(raw)
		if err != nil {
			return nil, fmt.Errorf("raw frame transform: %w", err)
		}
	}

	if !fits.EqualInt32Slice(raw.Naxisn, c.MasterDark.Naxisn) || !fits.EqualInt32Slice(raw.Naxisn, c.MasterFlat.Naxisn) {
		return nil, fmt.Errorf("%w: raw %s dark %s flat %s", ErrCalibrationDimensionMismatch, raw.DimensionsToString(), c.MasterDark.DimensionsToString(), c.MasterFlat.DimensionsToString())
	}

	c.flatMeanOnce.Do(func() { c.flatCenterMean = flatCenterMean(c.MasterFlat) })

	// "THIS IS A MYSTERY" per the original source: the hot-pixel threshold
	// is computed from the raw image's own median+2*sigma, before
	// calibration arithmetic, not from the calibrated result.
	var highValue float32
	if c.HotPixelCorrection {
		highValue = rawHighValueThreshold(raw.Data)
	}

	out := fits.NewImageFromImage(raw)
	Subtract(out.Data, raw.Data, c.MasterDark.Data)
	Divide(out.Data, out.Data, c.MasterFlat.Data, c.flatCenterMean)

	if c.HotPixelCorrection {
		correctHotPixels(out.Data, int(raw.Naxisn[0]), int(raw.Naxisn[1]), c.MasterDark.Data, highValue)
	}

	if c.BadPixelSigmaLow > 0 && c.BadPixelSigmaHigh > 0 {
		repairBadPixels(out.Data, raw.Naxisn[0], c.BadPixelSigmaLow, c.BadPixelSigmaHigh)
	}

	if len(c.Crop.Polygons) > 0 {
		applyCropSentinel(out.Data, int(raw.Naxisn[0]), int(raw.Naxisn[1]), c.Crop, 1)
	}

	out.Stats.Clear()
	return out, nil
}

// repairBadPixels flags pixels via BadPixelMap and replaces each with its
// local 3x3 median, matching the teacher's OpBadPixel: flag against the
// median-filter residual, repair with the filter's own output rather than
// re-running it per pixel.
func repairBadPixels(data []float32, width int32, sigmaLow, sigmaHigh float32) {
	filtered := make([]float32, len(data))
	median.MedianFilter3x3(filtered, data, width)
	bpm := flagOutliers(data, filtered, sigmaLow, sigmaHigh)
	for _, idx := range bpm {
		data[idx] = filtered[idx]
	}
}

func rawHighValueThreshold(data []float32) float32 {
	cp := append([]float32(nil), data...)
	med := qsort.QSelectMedianFloat32(cp)
	var sumSq float64
	for _, v := range data {
		diff := float64(v) - float64(med)
		sumSq += diff * diff
	}
	std := float32(math.Sqrt(sumSq / float64(len(data))))
	return med + 2*std
}

// correctHotPixels repairs pixels identified from the master dark as
// abnormally high (> median(dark)+3*sigma(dark), excluding a 5px edge
// band). For each such pixel: if the center and any of its 4-neighbors
// exceed highValue, it is replaced with a Gaussian fit evaluated at the
// center of the surrounding 10x10 box; otherwise it is replaced with the
// mean of its eight 3x3 neighbors.
func correctHotPixels(data []float32, width, height int, darkData []float32, highValue float32) {
	cp := append([]float32(nil), darkData...)
	med := qsort.QSelectMedianFloat32(cp)
	var sumSq float64
	for _, v := range darkData {
		diff := float64(v) - float64(med)
		sumSq += diff * diff
	}
	std := float32(math.Sqrt(sumSq / float64(len(darkData))))
	threshold := med + 3*std

	const edge = 5
	for row := edge; row < height-edge; row++ {
		for col := edge; col < width-edge; col++ {
			idx := row*width + col
			if darkData[idx] <= threshold {
				continue
			}
			recalibrateAt(data, width, height, row, col, highValue)
		}
	}
}

func recalibrateAt(data []float32, width, height, row, col int, highValue float32) {
	idx := row*width + col
	neighbors := [4]float32{
		data[(row-1)*width+col],
		data[(row+1)*width+col],
		data[row*width+col-1],
		data[row*width+col+1],
	}
	needsGaussian := data[idx] > highValue
	if needsGaussian {
		needsGaussian = false
		for _, n := range neighbors {
			if n > highValue {
				needsGaussian = true
				break
			}
		}
	}
	if needsGaussian && row >= 5 && col >= 5 && row+5 < height && col+5 < width {
		data[idx] = gaussianFitCenter(data, width, row, col)
		return
	}
	takeAverage(data, width, row, col)
}

// gaussianFitCenter fits a circularly symmetric 2-D Gaussian plus constant
// background to the 10x10 box surrounding (row,col) and returns the fitted
// surface evaluated at the box's own center (the hot pixel's position).
// The original source documents this step but never implements it
// (doGaussain() calls takeAverage() instead, with a literal TODO); this is
// the actual fit, via the same gonum optimize.NelderMead least-squares
// approach internal/stats uses in GetModeStdDevFromHistogram.
func gaussianFitCenter(data []float32, width, row, col int) float32 {
	const half = 5
	type sample struct{ dx, dy, v float64 }
	samples := make([]sample, 0, (2*half)*(2*half))
	var sum, sumSq, peak float64
	for dy := -half; dy < half; dy++ {
		for dx := -half; dx < half; dx++ {
			v := float64(data[(row+dy)*width+(col+dx)])
			samples = append(samples, sample{float64(dx), float64(dy), v})
			sum += v
			sumSq += v * v
			if v > peak {
				peak = v
			}
		}
	}
	n := float64(len(samples))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance <= 0 {
		return float32(mean)
	}

	// x = [amplitude, centerX, centerY, sigma, background]
	x0 := []float64{peak - mean, 0, 0, math.Sqrt(variance), mean}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			amplitude, cx, cy, sigma, background := x[0], x[1], x[2], x[3], x[4]
			if sigma <= 0 {
				return math.Inf(1)
			}
			var sumSqDiff float64
			for _, s := range samples {
				ddx, ddy := s.dx-cx, s.dy-cy
				predicted := background + amplitude*math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma))
				diff := s.v - predicted
				sumSqDiff += diff * diff
			}
			return sumSqDiff
		},
	}
	result, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
	if err != nil {
		return float32(mean + (peak-mean)*0.5)
	}
	amplitude, cx, cy, sigma, background := result.X[0], result.X[1], result.X[2], result.X[3], result.X[4]
	ddx, ddy := -cx, -cy
	return float32(background + amplitude*math.Exp(-(ddx*ddx+ddy*ddy)/(2*sigma*sigma)))
}

func takeAverage(data []float32, width, row, col int) {
	var sum float64
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dy == 0 && dx == 0 {
				continue
			}
			sum += float64(data[(row+dy)*width+(col+dx)])
		}
	}
	data[row*width+col] = float32(sum / 8)
}

func applyCropSentinel(data []float32, width, height int, crop CropRegion, sentinel float32) {
	for _, poly := range crop.Polygons {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				if pointInPolygon(poly, int32(x), int32(y)) {
					data[y*width+x] = sentinel
				}
			}
		}
	}
}

func pointInPolygon(poly []Point, x, y int32) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly[i], poly[j]
		if (pi.Y > y) != (pj.Y > y) &&
			x < (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// Subtract computes the element-wise difference c[i]=a[i]-b[i].
func Subtract(c, a, b []float32) {
	for i := range c {
		c[i] = a[i] - b[i]
	}
}

// Divide computes the element-wise scaled ratio c[i]=a[i]*bMax/b[i],
// keeping the original pixel value where the denominator is non-positive
// (locally degenerate flat field). Grounded on
// internal/ops/pre/badpixels.go's Divide.
func Divide(cs, as, bs []float32, bMax float32) {
	for i := range cs {
		b := bs[i]
		if b <= 0 {
			cs[i] = as[i]
		} else {
			cs[i] = as[i] * bMax / b
		}
	}
}

// BadPixelMap identifies pixels that deviate from a local 3x3 median
// filter by more than sigmaLow/sigmaHigh times the standard deviation of
// the overall differences. Used directly by Calibrator's post-calibration
// bad-pixel pass (BadPixelSigmaLow/High) and exposed here for callers that
// only need the flagged indices. Grounded on internal/ops/pre/badpixels.go
// BadPixelMap (adapted to this package).
func BadPixelMap(data []float32, width int32, sigmaLow, sigmaHigh float32) (bpm []int32) {
	filtered := make([]float32, len(data))
	median.MedianFilter3x3(filtered, data, width)
	return flagOutliers(data, filtered, sigmaLow, sigmaHigh)
}

// flagOutliers returns the indices where data deviates from filtered by
// more than sigmaLow/sigmaHigh standard deviations of the overall
// data-filtered residual.
func flagOutliers(data, filtered []float32, sigmaLow, sigmaHigh float32) []int32 {
	residual := make([]float32, len(data))
	Subtract(residual, data, filtered)

	cp := append([]float32(nil), residual...)
	med := qsort.QSelectMedianFloat32(cp)
	var sumSq float64
	for _, v := range residual {
		diff := float64(v) - float64(med)
		sumSq += diff * diff
	}
	std := float32(math.Sqrt(sumSq / float64(len(residual))))
	thresholdLow := -std * sigmaLow
	thresholdHigh := std * sigmaHigh

	bpm := make([]int32, 0, len(data)/100)
	for i, r := range residual {
		if r < thresholdLow || r > thresholdHigh {
			bpm = append(bpm, int32(i))
		}
	}
	return bpm
}
