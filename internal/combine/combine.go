// Package combine implements fixed-size temporal stacking of
// aligned frames by per-pixel summation, partitioned into disjoint
// windows with any remainder discarded.
//
// Grounded on original_source/m23/combine/combination.py's
// imageCombination (np.sum over a stack) for the arithmetic, and on the
// teacher's deleted internal/ops/stack/stackbatches.go batch-partitioning
// pattern for how a flat file list is split into fixed-size groups.
package combine

import (
	"errors"
	"fmt"

	"github.com/LutherAstrophysics/m23/internal/fits"
)

var ErrEmptyWindow = errors.New("combine: empty window")
var ErrDimensionMismatch = errors.New("combine: frame dimensions do not match")

// Windows partitions n items into disjoint windows of exactly size elements
// each, returning the [start,end) index ranges. Any remainder smaller than
// size is dropped.
func Windows(n, size int) [][2]int {
	if size <= 0 {
		return nil
	}
	var windows [][2]int
	for start := 0; start+size <= n; start += size {
		windows = append(windows, [2]int{start, start + size})
	}
	return windows
}

// Sum combines the given aligned frames into a single frame by per-pixel
// summation. All frames must share identical dimensions. The result's
// header is copied from the first frame, matching the source's practice
// of preserving frame provenance through createFitFileWithSameHeader.
func Sum(frames []*fits.Image) (*fits.Image, error) {
	if len(frames) == 0 {
		return nil, ErrEmptyWindow
	}
	naxisn := frames[0].Naxisn
	for _, f := range frames[1:] {
		if !fits.EqualInt32Slice(f.Naxisn, naxisn) {
			return nil, fmt.Errorf("%w: %s vs %s", ErrDimensionMismatch, f.DimensionsToString(), frames[0].DimensionsToString())
		}
	}

	out := fits.NewImageFromImage(frames[0])
	out.Header = frames[0].Header
	for _, f := range frames {
		for i, v := range f.Data {
			out.Data[i] += v
		}
	}
	out.Stats.Clear()
	return out, nil
}

// CombineAll partitions frames into fixed-size disjoint windows and sums
// each window, returning one combined frame per window plus the number
// of trailing frames dropped as a remainder.
func CombineAll(frames []*fits.Image, windowSize int) (combined []*fits.Image, dropped int, err error) {
	windows := Windows(len(frames), windowSize)
	combined = make([]*fits.Image, 0, len(windows))
	for _, w := range windows {
		sum, err := Sum(frames[w[0]:w[1]])
		if err != nil {
			return nil, 0, err
		}
		combined = append(combined, sum)
	}
	dropped = len(frames) - len(windows)*windowSize
	return combined, dropped, nil
}
