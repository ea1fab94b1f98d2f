// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package qsort provides in-place quicksort and quickselect over float32
// slices, used throughout the pipeline for per-pixel medians (master dark
// and master flat construction), robust image statistics, and the
// intra-night scale-factor median.
package qsort

// QSortFloat32 sorts a in ascending order. a must not contain IEEE NaN.
func QSortFloat32(a []float32) {
	if len(a) > 1 {
		index := QPartitionFloat32(a)
		QSortFloat32(a[:index])
		QSortFloat32(a[index+1:])
	}
}

// QPartitionFloat32 partitions a around a pivot (last element), returning
// the pivot's final index. Elements left of the index are <= pivot,
// elements to the right are >= pivot.
func QPartitionFloat32(a []float32) int {
	pivot := a[len(a)-1]
	i := 0
	for j := 0; j < len(a)-1; j++ {
		if a[j] < pivot {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[len(a)-1] = a[len(a)-1], a[i]
	return i
}

// QSelectFloat32 reorders a in place such that a[k] holds the value that
// would be at index k if a were fully sorted (0-based). a must not contain
// IEEE NaN. This mutates a.
func QSelectFloat32(a []float32, k int) float32 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := lo + QPartitionFloat32(a[lo:hi+1])
		if p == k {
			break
		} else if k < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
	return a[k]
}

// QSelectFirstQuartileFloat32 returns the value at the first quartile of a,
// reordering a in place. Used by the Qn-style robust scale estimators in
// internal/stats, which need a distribution quantile cheaper than a full
// sort.
func QSelectFirstQuartileFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	return QSelectFloat32(a, n/4)
}

// QSelectMedianFloat32 returns the statistical median of a, reordering a in
// place. For an odd-length array this is the middle element; for an
// even-length array this is the mean of the two middle elements.
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	if n&1 != 0 {
		return QSelectFloat32(a, n/2)
	}
	hi := QSelectFloat32(a, n/2)
	// The low half is now fully partitioned below index n/2; its max is the
	// other middle value.
	lo := a[:n/2]
	max := lo[0]
	for _, v := range lo[1:] {
		if v > max {
			max = v
		}
	}
	return 0.5 * (max + hi)
}
