// Package internight implements inter-night (color) normalization: given
// a star's intra-night-normalized median flux for the night and its R-I
// color (or, absent that, its brightness), computes a normalization
// factor that makes the flux comparable to the reference night.
//
// Grounded on original_source/m23/internight_normalize/__init__.py
// internight_normalize_auxiliary, including its three-section color-based
// cubic-then-quadratic polynomial fit with Gaussian-histogram outlier
// rejection, its three-region magnitude-based fallback fit for stars
// without usable color data, and its literal LPV override table.
package internight

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// StarInput is one star's measurements for the night, gathered from its
// FluxLogCombined, the reference catalog, and the R-I color table.
type StarInput struct {
	StarNumber     int
	MedianFlux     float32 // specialized median per FluxLogCombinedFile
	Attendance     float32
	MeasuredRI     float32 // 0 (as the night package passes it) or NaN if absent from the color table; both take the no-color path
	ReferenceADU   float32 // NaN if absent from the reference catalog
}

// StarOutput is the final per-star normalization result, matching
// m23file.ColorNormalizedEntry's fields one-to-one.
type StarOutput struct {
	StarNumber           int
	MedianFlux           float32
	NormalizedMedianFlux float32
	NormFactor           float32
	MeasuredMeanRI       float32
	UsedMeanRI           float32
	Attendance           float32
	ReferenceLogADU      float32
}

// lpvOverrides is the literal table of known long-period variables whose
// true R-I color is unusable for fitting; their normfactor instead uses
// a manually-assigned color value evaluated against section 3's final
// quadratic fit.
var lpvOverrides = map[int]float32{
	814:  2.6137,
	1223: 3.6242,
	1654: 2.8866,
	1702: 2.9175,
	1716: 2.6137,
	1843: 2.7849,
	2437: 2.5545,
	2509: 2.7816,
	2510: 3.0923,
}

// FluxToMagnitude converts a median flux to an instrumental magnitude
// using the per-radius linear-in-log coefficients fit by the original
// program.
func FluxToMagnitude(flux float32, radius int) (float64, error) {
	logFlux := math.Log10(float64(flux))
	switch radius {
	case 5:
		return 23.99 - 2.5665*logFlux, nil
	case 4:
		return 24.176 - 2.6148*logFlux, nil
	case 3:
		return 23.971 - 2.9507*logFlux, nil
	default:
		return 0, errUnsupportedRadius(radius)
	}
}

type errUnsupportedRadius int

func (e errUnsupportedRadius) Error() string {
	return "internight: no magnitude formula for radius"
}

const minAttendance = 0.5
const minMedianFluxForSignalRatio = 0.001

// Normalize computes the normalization factor and resulting normalized
// median flux for every star in inputs, at the given extraction radius.
func Normalize(inputs []StarInput, radius int) []StarOutput {
	outputs := make(map[int]*StarOutput, len(inputs))
	for _, in := range inputs {
		outputs[in.StarNumber] = &StarOutput{
			StarNumber:      in.StarNumber,
			MedianFlux:      in.MedianFlux,
			MeasuredMeanRI:  in.MeasuredRI,
			UsedMeanRI:      float32(math.NaN()),
			Attendance:      in.Attendance,
			ReferenceLogADU: in.ReferenceADU,
			NormFactor:      float32(math.NaN()),
		}
	}

	// Signal ratio = reference ADU / night's median flux, only for stars
	// with enough attendance and non-trivial flux.
	signalRatio := map[int]float64{}
	for _, in := range inputs {
		if float64(in.Attendance) >= minAttendance && float64(in.MedianFlux) > minMedianFluxForSignalRatio {
			if !math.IsNaN(float64(in.ReferenceADU)) {
				signalRatio[in.StarNumber] = float64(in.ReferenceADU) / float64(in.MedianFlux)
			}
		}
	}

	population := classifyByColor(inputs, signalRatio)
	sectionData := buildSections(inputs, signalRatio, population)

	colorFitFns := fitSectionsWithOutlierRejection(sectionData)

	for starNo, ratio := range signalRatio {
		_ = ratio
		sec, ok := population[starNo]
		if !ok {
			continue
		}
		out := outputs[starNo]
		x := float64(out.MeasuredMeanRI)
		fn := colorFitFns[sec]
		normFactor := fn(x)
		out.NormFactor = float32(normFactor)
		out.NormalizedMedianFlux = out.MedianFlux * float32(normFactor)
		out.UsedMeanRI = out.MeasuredMeanRI
	}

	magnitudeFits := fitMagnitudeRegions(inputs, signalRatio, radius)

	for _, in := range inputs {
		out := outputs[in.StarNumber]
		color := out.MeasuredMeanRI
		if color < 0.135 || color >= 7 || math.IsNaN(float64(color)) {
			var normFactor float64
			var usedColor float32
			haveFactor := false

			if ovColor, ok := lpvOverrides[in.StarNumber]; ok {
				normFactor = colorFitFns[3](float64(ovColor))
				usedColor = ovColor
				haveFactor = true
			} else if mag, ok := magnitudeFits.magnitudeFor(in.StarNumber); ok {
				region := magnitudeFits.regionFor(in.StarNumber)
				normFactor = magnitudeFits.fns[region](mag)
				usedColor = out.MeasuredMeanRI
				haveFactor = true
			}

			if haveFactor {
				out.NormFactor = float32(normFactor)
				out.NormalizedMedianFlux = out.MedianFlux * float32(normFactor)
				out.UsedMeanRI = usedColor
			}
		}

		if math.IsNaN(float64(out.MedianFlux)) || out.Attendance < minAttendance {
			out.NormalizedMedianFlux = 0
			out.NormFactor = 0
			out.UsedMeanRI = out.MeasuredMeanRI
		}
	}

	result := make([]StarOutput, 0, len(outputs))
	for _, in := range inputs {
		result = append(result, *outputs[in.StarNumber])
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StarNumber < result[j].StarNumber })
	return result
}

// colorSection returns 1, 2, 3 for the star's color bucket, or 0 if none.
func colorSection(color float32) int {
	if color <= -0.0001 || color >= 0.0001 {
		switch {
		case color > 0.135 && color <= 0.455:
			return 1
		case color > 0.455 && color <= 1.063:
			return 2
		case color > 1.063 && color <= 7:
			return 3
		}
	}
	return 0
}

func classifyByColor(inputs []StarInput, signalRatio map[int]float64) map[int]int {
	population := map[int]int{}
	for _, in := range inputs {
		if _, ok := signalRatio[in.StarNumber]; !ok {
			continue
		}
		if sec := colorSection(in.MeasuredRI); sec != 0 {
			population[in.StarNumber] = sec
		}
	}
	return population
}

type section struct {
	stars  []int
	xs, ys []float64
}

func buildSections(inputs []StarInput, signalRatio map[int]float64, population map[int]int) map[int]*section {
	byStar := make(map[int]StarInput, len(inputs))
	for _, in := range inputs {
		byStar[in.StarNumber] = in
	}

	sections := map[int]*section{1: {}, 2: {}, 3: {}}
	for starNo, sec := range population {
		s := sections[sec]
		s.stars = append(s.stars, starNo)
		s.xs = append(s.xs, float64(byStar[starNo].MeasuredRI))
		s.ys = append(s.ys, signalRatio[starNo])
	}
	return sections
}

// fitSectionsWithOutlierRejection performs the two-pass fit described in
// the grounding source: a cubic fit per section to find residuals, a
// Gaussian fit to the pooled residual histogram to find a 2-sigma
// threshold, then a final quadratic fit per section excluding points
// beyond that threshold.
func fitSectionsWithOutlierRejection(sections map[int]*section) map[int]func(float64) float64 {
	type sectionResiduals struct {
		stars       []int
		differences []float64
	}
	residualsBySection := map[int]sectionResiduals{}

	for _, secNum := range []int{1, 2, 3} {
		s := sections[secNum]
		if len(s.xs) < 4 {
			residualsBySection[secNum] = sectionResiduals{stars: s.stars, differences: make([]float64, len(s.stars))}
			continue
		}
		ys := smoothEndpoints(s.ys)
		coeffs := polyfit(s.xs, ys, 3)
		diffs := make([]float64, len(s.xs))
		for i, x := range s.xs {
			diffs[i] = evalPoly(coeffs, x) - s.ys[i]
		}
		residualsBySection[secNum] = sectionResiduals{stars: s.stars, differences: diffs}
	}

	var pooled []float64
	for _, secNum := range []int{1, 2, 3} {
		pooled = append(pooled, residualsBySection[secNum].differences...)
	}
	mean, sigma := gaussianHistogramFit(pooled, 11)
	topThreshold := mean + 2*sigma
	bottomThreshold := mean - 2*sigma

	outsideThreshold := map[int]bool{}
	for _, secNum := range []int{1, 2, 3} {
		r := residualsBySection[secNum]
		for i, d := range r.differences {
			if d < bottomThreshold || d > topThreshold {
				outsideThreshold[r.stars[i]] = true
			}
		}
	}

	fns := map[int]func(float64) float64{}
	for _, secNum := range []int{1, 2, 3} {
		s := sections[secNum]
		var xs, ys []float64
		for i, starNo := range s.stars {
			if outsideThreshold[starNo] {
				continue
			}
			xs = append(xs, s.xs[i])
			ys = append(ys, s.ys[i])
		}
		if len(xs) < 3 {
			fns[secNum] = func(x float64) float64 { return 1 }
			continue
		}
		ys = smoothEndpoints(ys)
		coeffs := polyfit(xs, ys, 2)
		fns[secNum] = func(x float64) float64 { return evalPoly(coeffs, x) }
	}
	return fns
}

// smoothEndpoints replaces the first/last y value with the mean of the
// nearest two others when it deviates from its neighbor by more than 2
// standard deviations, matching the source's endpoint-stabilization step
// before fitting.
func smoothEndpoints(ys []float64) []float64 {
	if len(ys) < 4 {
		return append([]float64(nil), ys...)
	}
	out := append([]float64(nil), ys...)
	std := stddev(ys)
	if std == 0 {
		return out
	}
	if math.Abs(ys[0]-ys[1])/std > 2 {
		out[0] = (ys[1] + ys[2]) / 2
	}
	n := len(ys)
	if math.Abs(ys[n-1]-ys[n-2])/std > 2 {
		out[n-1] = (ys[n-2] + ys[n-3]) / 2
	}
	return out
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sumSq float64
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// gaussianHistogramFit bins values into nBins equal-width bins (per the
// source's np.histogram call) and fits a normal distribution to the
// bin-midpoint-weighted-by-frequency reconstruction, equivalent to the
// weighted mean/stddev over bin midpoints.
func gaussianHistogramFit(values []float64, nBins int) (mean, sigma float64) {
	if len(values) == 0 {
		return 0, 1
	}
	std := stddev(values)
	minV, maxV := values[0], values[0]
	for _, v := range values {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	lo := minV - 5*std
	hi := maxV - 5*std
	if hi <= lo {
		hi = lo + 1
	}
	width := (hi - lo) / float64(nBins)

	freq := make([]int, nBins)
	for _, v := range values {
		idx := int((v - lo) / width)
		if idx < 0 {
			idx = 0
		}
		if idx >= nBins {
			idx = nBins - 1
		}
		freq[idx]++
	}

	var totalWeight float64
	var weightedSum float64
	for i := 0; i < nBins; i++ {
		mid := lo + width*(float64(i)+0.5)
		w := float64(freq[i])
		weightedSum += mid * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0, std
	}
	mean = weightedSum / totalWeight

	var weightedSumSq float64
	for i := 0; i < nBins; i++ {
		mid := lo + width*(float64(i)+0.5)
		w := float64(freq[i])
		d := mid - mean
		weightedSumSq += w * d * d
	}
	sigma = math.Sqrt(weightedSumSq / totalWeight)
	return mean, sigma
}

// magnitudeFitSet holds the three brightness-based fallback fits used for
// stars lacking usable color data, and the per-star magnitude/region
// lookup needed to evaluate them.
type magnitudeFitSet struct {
	fns        map[int]func(float64) float64
	magnitude  map[int]float64
	region     map[int]int
}

func (m magnitudeFitSet) magnitudeFor(star int) (float64, bool) {
	v, ok := m.magnitude[star]
	return v, ok
}

func (m magnitudeFitSet) regionFor(star int) int {
	return m.region[star]
}

// fitMagnitudeRegions computes the three magnitude-based region fits
// (linear, quadratic, constant-median) used as a fallback for stars
// without usable R-I color.
func fitMagnitudeRegions(inputs []StarInput, signalRatio map[int]float64, radius int) magnitudeFitSet {
	magnitude := map[int]float64{}
	for _, in := range inputs {
		if _, ok := signalRatio[in.StarNumber]; !ok {
			continue
		}
		mag, err := FluxToMagnitude(in.MedianFlux, radius)
		if err != nil {
			continue
		}
		magnitude[in.StarNumber] = mag
	}

	region := map[int]int{}
	byRegion := map[int][]int{1: {}, 2: {}, 3: {}}
	for starNo, mag := range magnitude {
		var r int
		switch {
		case mag < 11:
			r = 1
		case mag < 12.5:
			r = 2
		default:
			r = 3
		}
		region[starNo] = r
		byRegion[r] = append(byRegion[r], starNo)
	}

	fns := map[int]func(float64) float64{}
	for r, stars := range byRegion {
		var xs, ys []float64
		for _, s := range stars {
			xs = append(xs, magnitude[s])
			ys = append(ys, signalRatio[s])
		}
		switch {
		case len(xs) == 0:
			fns[r] = func(x float64) float64 { return 1 }
		case r == 1:
			coeffs := polyfit(xs, ys, 1)
			fns[r] = func(x float64) float64 { return evalPoly(coeffs, x) }
		case r == 2:
			coeffs := polyfit(xs, ys, 2)
			fns[r] = func(x float64) float64 { return evalPoly(coeffs, x) }
		default:
			med := medianFloat64(ys)
			fns[r] = func(x float64) float64 { return med }
		}
	}

	return magnitudeFitSet{fns: fns, magnitude: magnitude, region: region}
}

func medianFloat64(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	cp := append([]float64(nil), xs...)
	sort.Float64s(cp)
	mid := len(cp) / 2
	if len(cp)%2 == 0 {
		return (cp[mid-1] + cp[mid]) / 2
	}
	return cp[mid]
}

// polyfit fits a degree-n polynomial to (xs,ys) via ordinary least squares
// over a Vandermonde matrix, returning coefficients lowest-degree first
// (coeffs[0] is the constant term).
func polyfit(xs, ys []float64, degree int) []float64 {
	n := len(xs)
	vander := mat.NewDense(n, degree+1, nil)
	for i, x := range xs {
		p := 1.0
		for j := 0; j <= degree; j++ {
			vander.Set(i, j, p)
			p *= x
		}
	}
	yVec := mat.NewVecDense(n, ys)

	var coeffs mat.VecDense
	var qr mat.QR
	qr.Factorize(vander)
	if err := qr.SolveVecTo(&coeffs, false, yVec); err != nil {
		return make([]float64, degree+1)
	}
	out := make([]float64, degree+1)
	for i := range out {
		out[i] = coeffs.AtVec(i)
	}
	return out
}

// evalPoly evaluates coefficients (lowest-degree first) at x.
func evalPoly(coeffs []float64, x float64) float64 {
	result := 0.0
	p := 1.0
	for _, c := range coeffs {
		result += c * p
		p *= x
	}
	return result
}
