package embedding

import (
	"errors"
	"math"
)

// ErrLengthMismatch is returned when vectors have different lengths.
var ErrLengthMismatch = errors.New("vectors must have the same length")

// ErrZeroMagnitude is returned when a vector has zero magnitude.
var ErrZeroMagnitude = errors.New("vector has zero magnitude")

// CosineSimilarity computes the cosine similarity of two vectors, in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}

	var dot, magA, magB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		magA += av * av
		magB += bv * bv
	}
	if magA == 0 || magB == 0 {
		return 0, ErrZeroMagnitude
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// BestMatch returns the highest similarity between query and any candidate.
// Candidates of the wrong length or zero magnitude are skipped; with no usable
// candidate the result is 0.
func BestMatch(query []float32, candidates [][]float32) float64 {
	best := 0.0
	for _, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil {
			continue
		}
		if sim > best {
			best = sim
		}
	}
	return best
}
