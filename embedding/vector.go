package embedding

import "math"

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
// Stored vectors are normalized so cosine similarity reduces to a dot product.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float32
	for _, val := range v {
		magnitude += val * val
	}
	magnitude = float32(math.Sqrt(float64(magnitude)))

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = val / magnitude
	}
	return result
}
