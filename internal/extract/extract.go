// Package extract implements aperture photometry over aligned-combined
// frames: tiled sky background estimation, centroid refinement against a
// reference catalog, multi-radius flux summation, and FWHM estimation.
//
// Grounded on original_source/src/m23/extract/__init__.py
// (sky_bg_average_for_all_regions, newStarCenters, flux_log_for_radius,
// circleMatrix, fwhm) and on the teacher's internal/star/findstars.go
// CreateMask for the circular aperture mask idiom.
package extract

import (
	"math"
	"sort"
	"sync"
)

// RegionSize is the side length of the disjoint square tiles used for sky
// background estimation.
const RegionSize = 64

// RefStar is a single star's position in the reference catalog, in (x,y)
// image coordinates.
type RefStar struct {
	Number int
	X, Y   float32
}

// BackgroundMap holds the per-tile trimmed-mean sky background, keyed by
// (row, col) tile indices.
type BackgroundMap struct {
	data   map[[2]int]float32
	width  int
	height int
}

// ComputeBackgroundMap partitions data (row-major, width x height) into
// disjoint RegionSize x RegionSize tiles and computes each tile's
// background as the mean of the central 45%-55% band of its sorted
// non-zero pixel values.
func ComputeBackgroundMap(data []float32, width, height int) *BackgroundMap {
	rows := height / RegionSize
	cols := width / RegionSize
	bg := &BackgroundMap{data: make(map[[2]int]float32, rows*cols), width: width, height: height}

	tile := make([]float32, 0, RegionSize*RegionSize)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			tile = tile[:0]
			for y := i * RegionSize; y < (i+1)*RegionSize; y++ {
				rowStart := y * width
				for x := j * RegionSize; x < (j+1)*RegionSize; x++ {
					v := data[rowStart+x]
					if v != 0 {
						tile = append(tile, v)
					}
				}
			}
			bg.data[[2]int{i, j}] = trimmedMean(tile)
		}
	}
	return bg
}

func trimmedMean(tile []float32) float32 {
	if len(tile) == 0 {
		return 0
	}
	sorted := append([]float32(nil), tile...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	lo := int(0.45 * float64(len(sorted)))
	hi := int(0.55*float64(len(sorted))) + 1
	if hi > len(sorted) {
		hi = len(sorted)
	}
	if lo >= hi {
		lo = hi - 1
		if lo < 0 {
			lo = 0
		}
	}
	band := sorted[lo:hi]
	var sum float64
	for _, v := range band {
		sum += float64(v)
	}
	return float32(sum / float64(len(band)))
}

// At returns the background value for the tile containing image
// coordinate (x, y).
func (bg *BackgroundMap) At(x, y float32) float32 {
	row := int(y) / RegionSize
	col := int(x) / RegionSize
	return bg.data[[2]int{row, col}]
}

// circleMask caches the list of (dx,dy) offsets within a given integer
// radius, per the ceil(sqrt(dx^2+dy^2)) <= radius convention.
type circleMask struct {
	offsets [][2]int32
}

var (
	circleMaskMu    sync.Mutex
	circleMaskCache = map[int]*circleMask{}
)

func getCircleMask(radius int) *circleMask {
	circleMaskMu.Lock()
	defer circleMaskMu.Unlock()
	if m, ok := circleMaskCache[radius]; ok {
		return m
	}
	m := &circleMask{}
	r := int32(radius)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if int32(math.Ceil(math.Sqrt(float64(dx*dx+dy*dy)))) <= r {
				m.offsets = append(m.offsets, [2]int32{dx, dy})
			}
		}
	}
	circleMaskCache[radius] = m
	return m
}

// StarCenter is a star's refined centroid in image coordinates.
type StarCenter struct {
	X, Y float32
}

// RefineCenters recomputes each reference star's centroid by a weighted
// center-of-mass over an 11x11 (radius-5) circular window around its
// catalog position. Falls back to the catalog position when the weight
// sum is non-positive.
func RefineCenters(data []float32, width, height int, refs []RefStar) []StarCenter {
	mask := getCircleMask(5)
	centers := make([]StarCenter, len(refs))
	for i, ref := range refs {
		cy := int32(math.Floor(float64(ref.Y) + 0.5))
		cx := int32(math.Floor(float64(ref.X) + 0.5))

		var colWeightSum, rowWeightSum, weightSum float64
		for _, off := range mask.offsets {
			row := cy + off[1]
			col := cx + off[0]
			if row < 0 || int(row) >= height || col < 0 || int(col) >= width {
				continue
			}
			v := float64(data[int(row)*width+int(col)])
			weightSum += v
			colWeightSum += v * (float64(ref.X) + float64(off[0]))
			rowWeightSum += v * (float64(ref.Y) + float64(off[1]))
		}

		if weightSum > 0 {
			centers[i] = StarCenter{X: float32(colWeightSum / weightSum), Y: float32(rowWeightSum / weightSum)}
		} else {
			centers[i] = StarCenter{X: ref.X, Y: ref.Y}
		}
	}
	return centers
}

// StarFlux holds the three-way flux decomposition for one star at one
// extraction radius: total, background, and background-subtracted.
type StarFlux struct {
	Total      float32
	Background float32
	Subtracted float32
}

// FluxForRadius computes, for every star center, the circular-aperture
// flux at the given radius against the supplied background map.
func FluxForRadius(radius int, centers []StarCenter, data []float32, width, height int, bg *BackgroundMap) []StarFlux {
	mask := getCircleMask(radius)
	pixelsPerStar := float32(len(mask.offsets))

	fluxes := make([]StarFlux, len(centers))
	for i, c := range centers {
		cy := int32(math.Floor(float64(c.Y) + 0.5))
		cx := int32(math.Floor(float64(c.X) + 0.5))

		var total float32
		for _, off := range mask.offsets {
			row := cy + off[1]
			col := cx + off[0]
			if row < 0 || int(row) >= height || col < 0 || int(col) >= width {
				continue
			}
			total += data[int(row)*width+int(col)]
		}
		bgPerPixel := bg.At(c.X, c.Y)
		subtracted := total - bgPerPixel*pixelsPerStar

		fluxes[i] = StarFlux{
			Total:      nanToZero(total),
			Background: nanToZero(bgPerPixel),
			Subtracted: nanToZero(subtracted),
		}
	}
	return fluxes
}

func nanToZero(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return v
}

// FWHMResult holds the x/y/average full-width-half-maximum of a star's
// brightness profile.
type FWHMResult struct {
	X, Y, Avg float32
}

// FWHM estimates the full-width-half-maximum of the star centered at
// (xWeight, yWeight), where xWeight is the row coordinate and yWeight the
// column coordinate, from an 11-pixel cross-section along each axis,
// using the 2*sqrt(2*ln2) Gaussian relation between second moment and
// FWHM.
func FWHM(data []float32, width, height int, xWeight, yWeight, aduPerPixel float32) FWHMResult {
	const gaussianFWHMFactor = 2.355

	cx := int32(math.Floor(float64(xWeight) + 0.5))
	cy := int32(math.Floor(float64(yWeight) + 0.5))

	var colSum, rowSum, weightedColSum, weightedRowSum float64
	for axis := -5; axis <= 5; axis++ {
		row := int(cx) + axis
		col := int(cy)
		if row >= 0 && row < height && col >= 0 && col < width {
			v := float64(data[row*width+col])
			colSum += v
			weightedColSum += (v - float64(aduPerPixel)) * math.Pow(float64(row)-float64(xWeight), 2)
		}
		row2 := int(cx)
		col2 := int(cy) + axis
		if row2 >= 0 && row2 < height && col2 >= 0 && col2 < width {
			v := float64(data[row2*width+col2])
			rowSum += v
			weightedRowSum += (v - float64(aduPerPixel)) * math.Pow(float64(col2)-float64(yWeight), 2)
		}
	}
	colSum -= float64(aduPerPixel) * 11
	rowSum -= float64(aduPerPixel) * 11

	xFWHM := gaussianFWHMFactor * math.Sqrt(weightedColSum/(colSum-1))
	yFWHM := gaussianFWHMFactor * math.Sqrt(weightedRowSum/(rowSum-1))
	avg := (xFWHM + yFWHM) / 2

	return FWHMResult{X: float32(xFWHM), Y: float32(yFWHM), Avg: float32(avg)}
}

// StarExtraction is the complete per-star result of one extraction pass
// at a single reference catalog entry, across all configured radii.
type StarExtraction struct {
	StarNumber int
	X, Y       float32 // axes swapped per the historical IDL convention: X=weighted_y, Y=weighted_x
	XFWHM      float32
	YFWHM      float32
	AvgFWHM    float32
	SkyADU     float32
	RadiiADU   map[int]float32
}

// ExtractAll runs the full extraction pipeline over one aligned-combined
// frame for every star in refs, at every radius in radii. radii must be
// non-empty; the first radius's background value is recorded as the
// star's representative sky ADU, matching the source's convention.
func ExtractAll(data []float32, width, height int, refs []RefStar, radii []int) []StarExtraction {
	bg := ComputeBackgroundMap(data, width, height)
	centers := RefineCenters(data, width, height, refs)

	fluxByRadius := make(map[int][]StarFlux, len(radii))
	for _, r := range radii {
		fluxByRadius[r] = FluxForRadius(r, centers, data, width, height, bg)
	}

	results := make([]StarExtraction, len(refs))
	for i, ref := range refs {
		c := centers[i]
		skyADU := fluxByRadius[radii[0]][i].Background
		fw := FWHM(data, width, height, c.Y, c.X, skyADU)

		radiiADU := make(map[int]float32, len(radii))
		for _, r := range radii {
			radiiADU[r] = fluxByRadius[r][i].Subtracted
		}

		results[i] = StarExtraction{
			StarNumber: ref.Number,
			X:          c.Y,
			Y:          c.X,
			XFWHM:      fw.Y,
			YFWHM:      fw.X,
			AvgFWHM:    fw.Avg,
			SkyADU:     skyADU,
			RadiiADU:   radiiADU,
		}
	}
	return results
}
