package classifier

import "math"

// EuclideanDistance computes the L2 distance between two vectors.
// Facenet-style embeddings keep same-person pairs roughly below 0.8,
// which is what the kNN distance coefficient is calibrated against.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.MaxFloat64
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}

	return math.Sqrt(sum)
}
