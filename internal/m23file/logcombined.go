package m23file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
)

// StarLogEntry is one star's row in a LogFileCombined file: position,
// FWHM, sky background, and the subtracted flux at every extraction
// radius used that night.
type StarLogEntry struct {
	X, Y            float32
	XFWHM, YFWHM    float32
	AvgFWHM         float32
	SkyADU          float32
	RadiiADU        map[int]float32
}

// LogCombinedData maps star number to its extraction result.
type LogCombinedData map[int]StarLogEntry

// WriteLogCombined writes a LogFileCombined text file in the 9-header-row,
// fixed-width-column layout of original_source/m23/file/log_file_combined_file.py.
func WriteLogCombined(w io.Writer, data LogCombinedData, imageName string, radii []int) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	stars := make([]int, 0, len(data))
	for s := range data {
		stars = append(stars, s)
	}
	sort.Ints(stars)

	sortedRadii := append([]int(nil), radii...)
	sort.Ints(sortedRadii)

	fmt.Fprintf(bw, "\n")
	fmt.Fprintf(bw, "Star Data Extractor Tool: (Note: This program mocks format of AIP_4_WIN) \n")
	fmt.Fprintf(bw, "\tImage %s:\n", imageName)
	fmt.Fprintf(bw, "\tTotal no of stars: %d\n", len(stars))
	fmt.Fprintf(bw, "\tRadius of star diaphragm: %v\n", sortedRadii)
	fmt.Fprintf(bw, "\tSky annulus inner radius: \n")
	fmt.Fprintf(bw, "\tSky annulus outer radius: \n")
	fmt.Fprintf(bw, "\tThreshold factor: \n")

	headers := []string{"X", "Y", "XFWHM", "YFWHM", "Avg FWHM", "Sky ADU"}
	for _, h := range headers {
		fmt.Fprintf(bw, "%16s", h)
	}
	for _, r := range sortedRadii {
		fmt.Fprintf(bw, "%16s", fmt.Sprintf("Star ADU %d", r))
	}
	fmt.Fprintf(bw, "\n")

	for _, s := range stars {
		e := data[s]
		fmt.Fprintf(bw, "%16.2f%16.2f%16.4f%16.4f%16.4f%16.2f", e.X, e.Y, e.XFWHM, e.YFWHM, e.AvgFWHM, e.SkyADU)
		for _, r := range sortedRadii {
			fmt.Fprintf(bw, "%16.2f", e.RadiiADU[r])
		}
		fmt.Fprintf(bw, "\n")
	}
	return nil
}

// WriteLogCombinedFile creates/overwrites a LogFileCombined file at path.
func WriteLogCombinedFile(path string, data LogCombinedData, imageName string, radii []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteLogCombined(f, data, imageName, radii)
}
