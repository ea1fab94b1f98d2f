package m23file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FluxLogCombined is a per-star, per-night time series of normalized flux
// values at a single extraction radius, one entry per successfully
// combined image in the night.
type FluxLogCombined struct {
	StartImg, EndImg int
	ReferenceLogUsed string
	X, Y             float32
	Flux             []float32
}

// WriteFluxLogCombined writes the 6-header-row layout of
// original_source/m23/file/flux_log_combined_file.py's create_file.
func WriteFluxLogCombined(w io.Writer, f FluxLogCombined) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	fmt.Fprintf(bw, "Program:\n")
	fmt.Fprintf(bw, "Started with image\t%d\n", f.StartImg)
	fmt.Fprintf(bw, "Ended with image\t%d\n", f.EndImg)
	fmt.Fprintf(bw, "Reference log file used: %s\n", f.ReferenceLogUsed)
	fmt.Fprintf(bw, "X location:\t%.3f\n", f.X)
	fmt.Fprintf(bw, "Y location:\t%.3f\n", f.Y)
	for _, v := range f.Flux {
		fmt.Fprintf(bw, "%10.2f\n", v)
	}
	return nil
}

// WriteFluxLogCombinedFile creates/overwrites a FluxLogCombined file at path.
func WriteFluxLogCombinedFile(path string, f FluxLogCombined) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteFluxLogCombined(file, f)
}

// fluxLogHeaderRows is the fixed number of metadata lines preceding flux
// data, per FluxLogCombinedFile.header_rows.
const fluxLogHeaderRows = 6

// ReadFluxLogCombined parses a FluxLogCombined file's flux values,
// skipping its header rows. Blank data lines are skipped; any other
// non-numeric data line is an error.
func ReadFluxLogCombined(r io.Reader) ([]float32, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(lines) <= fluxLogHeaderRows {
		return nil, nil
	}
	data := lines[fluxLogHeaderRows:]
	values := make([]float32, 0, len(data))
	for _, l := range data {
		if l == "" {
			continue
		}
		v, err := strconv.ParseFloat(l, 32)
		if err != nil {
			return nil, fmt.Errorf("flux log combined: invalid value %q: %w", l, err)
		}
		values = append(values, float32(v))
	}
	return values, nil
}

// Attendance returns the fraction of entries that are strictly positive,
// per FluxLogCombinedFile._calculate_attendance.
func Attendance(flux []float32) float64 {
	if len(flux) == 0 {
		return 0
	}
	positive := 0
	for _, v := range flux {
		if v > 0 {
			positive++
		}
	}
	return float64(positive) / float64(len(flux))
}
