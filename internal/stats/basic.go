package stats

import "math"

// Basic holds simple, non-caching statistics over a fixed sample array,
// used where the full on-demand Stats type would be overkill (e.g. one-off
// sampling for bad pixel rejection thresholds in star detection).
type Basic struct {
	Mean   float32
	StdDev float32
}

// CalcBasicStats computes the mean and (population) standard deviation of
// the given samples in a single pass.
func CalcBasicStats(samples []float32) *Basic {
	if len(samples) == 0 {
		return &Basic{}
	}
	var sum float64
	for _, v := range samples {
		sum += float64(v)
	}
	mean := sum / float64(len(samples))

	var sumSq float64
	for _, v := range samples {
		diff := float64(v) - mean
		sumSq += diff * diff
	}
	stdDev := math.Sqrt(sumSq / float64(len(samples)))

	return &Basic{Mean: float32(mean), StdDev: float32(stdDev)}
}
