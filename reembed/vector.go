package reembed

import "math"

// NormalizeVector scales v to unit length and returns a new slice.
// Zero vectors come back as zero vectors of the same width.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	result := make([]float32, len(v))
	if sum == 0 {
		return result
	}

	magnitude := math.Sqrt(sum)
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// uniformWidth reports whether every vector has the same non-zero length.
func uniformWidth(vectors [][]float32) (int, bool) {
	if len(vectors) == 0 {
		return 0, true
	}
	width := len(vectors[0])
	if width == 0 {
		return 0, false
	}
	for _, v := range vectors[1:] {
		if len(v) != width {
			return 0, false
		}
	}
	return width, true
}
