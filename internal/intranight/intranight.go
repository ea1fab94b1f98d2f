// Package intranight implements intra-night normalization: scaling each
// combined image's per-star flux against a handful of anchor images
// spread through the night, so that variations in transparency/airmass
// within a single night are removed before any cross-night comparison.
//
// Grounded on original_source/m23/norm/__init__.py normalize_log_files.
package intranight

import (
	"math"
	"sort"

	"github.com/LutherAstrophysics/m23/internal/qsort"
)

// StarPosition is a star's (x,y) as read from a per-image log, used to
// reject stars whose apparent position drifted from the reference
// catalog (e.g. a cosmic ray hit or tracking error).
type StarPosition struct {
	X, Y float32
}

// Image is one combined image's per-star flux and position data for a
// single night, in star-index order matching the reference catalog.
type Image struct {
	ADU       []float32
	Positions []StarPosition
}

// Result holds the per-image normalization factor and, for every star,
// its normalized flux series across the night's images.
type Result struct {
	NormFactors  []float32   // one per image
	StarFluxes   [][]float32 // StarFluxes[star][image], negative clamped to 0
}

const positionDriftLimit = 1.0 // pixels
const cornerMargin = 12.0      // pixels, inward contraction of the corner quadrilateral

// anchorIndices picks the four evenly-spaced anchor images at 1/5, 2/5,
// 3/5, 4/5 through the night, matching np.linspace(0, n, 6)[1:-1].
func anchorIndices(n int) []int {
	indices := make([]int, 0, 4)
	for k := 1; k <= 4; k++ {
		indices = append(indices, int(float64(k)*float64(n)/5.0))
	}
	return indices
}

// Normalize computes, for each image in images, a scale factor derived
// from the four anchor images, then applies it to every star's flux in
// that image.
//
// refPositions is the reference catalog's (x,y) for each star, used both
// to mask out stars whose measured position in an image drifted more than
// one pixel from the catalog (center-pixel mismatch) and, together with
// width/height, to build the corner quadrilateral that excludes stars too
// close to the image edge.
func Normalize(images []Image, refPositions []StarPosition, width, height float32) Result {
	n := len(images)
	numStars := len(refPositions)

	anchors := anchorIndices(n)
	anchorSum := make([]float32, numStars)
	for _, idx := range anchors {
		for s, v := range images[idx].ADU {
			anchorSum[s] += v
		}
	}

	insideQuad := cornerQuadrilateralMask(refPositions, width, height)

	normFactors := make([]float32, n)
	normalizedByImage := make([][]float32, n)

	for i, img := range images {
		adu := append([]float32(nil), img.ADU...)
		for s := range adu {
			if s >= len(img.Positions) || s >= len(refPositions) {
				continue
			}
			dx := refPositions[s].X - img.Positions[s].X
			dy := refPositions[s].Y - img.Positions[s].Y
			if dx*dx+dy*dy > positionDriftLimit*positionDriftLimit {
				adu[s] = 0
				continue
			}
			if !insideQuad[s] {
				adu[s] = 0
			}
		}

		var good []float32
		for s, v := range adu {
			if v == 0 {
				continue
			}
			scale := anchorSum[s] / (4 * v)
			if scale > 0 && scale < 5 {
				good = append(good, scale)
			}
		}

		normFactor := float32(0)
		if len(good) > 0 {
			normFactor = median(good)
		}
		normFactors[i] = normFactor

		scaled := make([]float32, len(img.ADU))
		for s, v := range img.ADU {
			scaled[s] = normFactor * v
		}
		normalizedByImage[i] = scaled
	}

	starFluxes := make([][]float32, numStars)
	for s := 0; s < numStars; s++ {
		series := make([]float32, n)
		for i := 0; i < n; i++ {
			v := float32(0)
			if s < len(normalizedByImage[i]) {
				v = normalizedByImage[i][s]
			}
			if v < 0 {
				v = 0
			}
			series[i] = v
		}
		starFluxes[s] = series
	}

	return Result{NormFactors: normFactors, StarFluxes: starFluxes}
}

// cornerQuadrilateralMask returns, for each catalog star, whether it lies
// inside the quadrilateral formed by the four catalog stars closest to the
// image's four corners, contracted 12px inward along each edge. Stars
// outside this box sit too near the frame edge to trust (vignetting,
// partial aperture, alignment-fill artifacts). The source's normalizer
// left this as a TODO ("mask ... + crop the outlier stars using linfit")
// and never actually executed it in production; this builds the
// quadrilateral the comment describes.
//
// With fewer than four catalog stars no quadrilateral can be formed, so
// every star is kept.
func cornerQuadrilateralMask(refPositions []StarPosition, width, height float32) []bool {
	keep := make([]bool, len(refPositions))
	if len(refPositions) < 4 {
		for i := range keep {
			keep[i] = true
		}
		return keep
	}

	corners := [4]StarPosition{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}
	var quad [4]StarPosition
	for c, corner := range corners {
		best := 0
		bestDist := float32(math.MaxFloat32)
		for i, p := range refPositions {
			dx, dy := p.X-corner.X, p.Y-corner.Y
			d := dx*dx + dy*dy
			if d < bestDist {
				bestDist, best = d, i
			}
		}
		quad[c] = refPositions[best]
	}

	for i, p := range refPositions {
		keep[i] = insideQuadWithMargin(quad, cornerMargin, p)
	}
	return keep
}

// insideQuadWithMargin reports whether p lies at least margin pixels
// inside every edge of quad (a simple, not necessarily axis-aligned,
// quadrilateral). The winding direction is determined from the shoelace
// signed area so the inward normal is correct regardless of the order
// quad's corners were discovered in.
func insideQuadWithMargin(quad [4]StarPosition, margin float32, p StarPosition) bool {
	area := float32(0)
	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		area += a.X*b.Y - b.X*a.Y
	}
	sign := float32(1)
	if area < 0 {
		sign = -1
	}

	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		edgeX, edgeY := b.X-a.X, b.Y-a.Y
		normX, normY := -edgeY*sign, edgeX*sign
		normLen := float32(math.Sqrt(float64(normX*normX + normY*normY)))
		if normLen == 0 {
			continue
		}
		normX, normY = normX/normLen, normY/normLen
		dist := (p.X-a.X)*normX + (p.Y-a.Y)*normY
		if dist < margin {
			return false
		}
	}
	return true
}

// median computes the standard (non-IDL) median used for the norm factor
// itself, via quickselect.
func median(values []float32) float32 {
	cp := append([]float32(nil), values...)
	return qsort.QSelectMedianFloat32(cp)
}

// SortedCopy returns a sorted copy of values, used by callers that need
// the IDL-style "sorted[len/2]" median variant elsewhere in the pipeline.
func SortedCopy(values []float32) []float32 {
	cp := append([]float32(nil), values...)
	sort.Slice(cp, func(i, j int) bool { return cp[i] < cp[j] })
	return cp
}

// SpecialMedian computes the inter-night normalizer's "specialized median"
// of a star's flux series: the IDL-style sorted[len/2] median taken only
// over images whose flux is strictly positive and whose per-image norm
// factor (from the same Result as series) lies in [0.85, 1.15] — images the
// intra-night pass judged poorly-scaled are excluded before the signal
// ratio is ever computed. Matches
// specialized_median_for_internight_normalization. Returns 0 if no image
// qualifies.
func SpecialMedian(series, normFactors []float32) float32 {
	var good []float32
	for i, v := range series {
		if v <= 0 || i >= len(normFactors) {
			continue
		}
		if n := normFactors[i]; n < 0.85 || n > 1.15 {
			continue
		}
		good = append(good, v)
	}
	if len(good) == 0 {
		return 0
	}
	sorted := SortedCopy(good)
	return sorted[len(sorted)/2]
}
