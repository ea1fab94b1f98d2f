package median

// GatherAndMedian copies the values at index+offset for each offset in mask
// into buffer (clamping out-of-range offsets to index itself), then returns
// their median. buffer must have the same length as mask.
func GatherAndMedian(data []float32, index int32, mask []int32, buffer []float32) float32 {
	for i, offset := range mask {
		idx := index + offset
		if idx < 0 || int(idx) >= len(data) {
			idx = index
		}
		buffer[i] = data[idx]
	}
	return MedianFloat32(buffer)
}
