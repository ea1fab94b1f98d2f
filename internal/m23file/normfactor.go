package m23file

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// WriteNormFactor writes one intra-night scale factor per line, in the
// order of the night's combined images. Mirrors NormfactorFile, which the
// source reads with np.array(lines, dtype="float") and never writes
// itself (normalize_log_files in original_source/m23/norm/__init__.py
// builds it via np.savetxt); the layout here matches that output.
func WriteNormFactor(w io.Writer, factors []float32) error {
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	for _, f := range factors {
		if _, err := fmt.Fprintf(bw, "%.7f\n", f); err != nil {
			return err
		}
	}
	return nil
}

// WriteNormFactorFile creates/overwrites a NormFactor file at path.
func WriteNormFactorFile(path string, factors []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteNormFactor(f, factors)
}

// ReadNormFactor parses a NormFactor file's per-image scale factors.
func ReadNormFactor(r io.Reader) ([]float32, error) {
	scanner := bufio.NewScanner(r)
	var out []float32
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 32)
		if err != nil {
			return nil, fmt.Errorf("normfactor: invalid value %q: %w", line, err)
		}
		out = append(out, float32(v))
	}
	return out, scanner.Err()
}
