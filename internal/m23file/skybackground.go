package m23file

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// SkyBgEntry is one combined image's tile-averaged sky background report
// row, paired with its intra-night normalization factors per radius.
type SkyBgEntry struct {
	DateTime      string
	Regions       map[[2]int]float32
	NormFactors   map[int]float32 // keyed by radius
}

// WriteSkyBackground writes the per-night sky background summary report
// (supplemented from original_source/src/m23/processor/process_nights.py
// create_sky_bg_file / original_source/m23/file/sky_bg_file.py).
func WriteSkyBackground(w io.Writer, entries []SkyBgEntry, radii []int) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	if len(entries) == 0 {
		return nil
	}

	sortedRadii := append([]int(nil), radii...)
	sort.Ints(sortedRadii)

	var regionKeys [][2]int
	for k := range entries[0].Regions {
		regionKeys = append(regionKeys, k)
	}
	sort.Slice(regionKeys, func(i, j int) bool {
		if regionKeys[i][0] != regionKeys[j][0] {
			return regionKeys[i][0] < regionKeys[j][0]
		}
		return regionKeys[i][1] < regionKeys[j][1]
	})

	fmt.Fprintf(bw, "%-26s%-10s%-10s%-10s", "Date", "Mean", "Median", "Std")
	for _, r := range sortedRadii {
		fmt.Fprintf(bw, "%-10s", fmt.Sprintf("norm_%dpx", r))
	}
	for _, k := range regionKeys {
		fmt.Fprintf(bw, "%-10s", fmt.Sprintf("%d_%d", k[0], k[1]))
	}
	fmt.Fprintf(bw, "\n")

	for _, e := range entries {
		var values []float32
		for _, k := range regionKeys {
			values = append(values, e.Regions[k])
		}
		mean, median, std := meanMedianStd(values)

		fmt.Fprintf(bw, "%-26s%-10.2f%-10.2f%-10.2f", e.DateTime, mean, median, std)
		for _, r := range sortedRadii {
			fmt.Fprintf(bw, "%-10.2f", e.NormFactors[r])
		}
		for _, v := range values {
			fmt.Fprintf(bw, "%-10.2f", v)
		}
		fmt.Fprintf(bw, "\n")
	}
	return nil
}

// WriteSkyBackgroundFile creates/overwrites a sky background report at path.
func WriteSkyBackgroundFile(path string, entries []SkyBgEntry, radii []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteSkyBackground(f, entries, radii)
}

func meanMedianStd(values []float32) (mean, median, std float32) {
	positive := make([]float32, 0, len(values))
	for _, v := range values {
		if v > 0 {
			positive = append(positive, v)
		}
	}
	if len(positive) == 0 {
		return 0, 0, 0
	}
	var sum float64
	for _, v := range positive {
		sum += float64(v)
	}
	meanF := sum / float64(len(positive))

	sorted := append([]float32(nil), positive...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	var med float64
	if len(sorted)%2 == 0 {
		med = (float64(sorted[mid-1]) + float64(sorted[mid])) / 2
	} else {
		med = float64(sorted[mid])
	}

	var sumSq float64
	for _, v := range positive {
		d := float64(v) - meanF
		sumSq += d * d
	}
	stdF := math.Sqrt(sumSq / float64(len(positive)))

	return float32(meanF), float32(med), float32(stdF)
}
