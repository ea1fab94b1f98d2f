package m23file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"time"
)

// ColorNormalizedEntry is one star's row in a ColorNormalized output,
// mirroring ColorNormalizedFile.StarData.
type ColorNormalizedEntry struct {
	MedianFlux            float32
	NormalizedMedianFlux  float32
	NormFactor             float32
	MeasuredMeanRI         float32
	UsedMeanRI             float32
	Attendance             float32
	ReferenceLogADU        float32
}

// ColorNormalizedData maps star number to its result.
type ColorNormalizedData map[int]ColorNormalizedEntry

// WriteColorNormalized writes the fixed-width two-header-row layout of
// original_source/m23/file/color_normalized_file.py's save_data.
func WriteColorNormalized(w io.Writer, data ColorNormalizedData, nightDate time.Time) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintf(bw, "Color-normalized Data for %s\n", nightDate.Format("2006-01-02"))
	fmt.Fprintf(bw, "\n")

	headers := []string{"Star #", "Normalized Median Flux", "Norm Factor", "Measured Mean R-I", "Used Mean R-I"}
	fmt.Fprintf(bw, "%8s%32s%24s%32s%32s\n", headers[0], headers[1], headers[2], headers[3], headers[4])

	stars := make([]int, 0, len(data))
	for s := range data {
		stars = append(stars, s)
	}
	sort.Ints(stars)

	for _, s := range stars {
		e := data[s]
		fmt.Fprintf(bw, "%8d%32.7f%24.7f%32.7f%32.7f\n", s, e.NormalizedMedianFlux, e.NormFactor, e.MeasuredMeanRI, e.UsedMeanRI)
	}
	return nil
}

// WriteColorNormalizedFile creates/overwrites a ColorNormalized file at
// path. The parent directory must already exist; it is not created here.
func WriteColorNormalizedFile(path string, data ColorNormalizedData, nightDate time.Time) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteColorNormalized(f, data, nightDate)
}
