package ml

import (
	"math"

	"github.com/fitbench/fitbench/internal/pkg/errors"
)

// SimilarityFunc scores two embeddings of equal width.
type SimilarityFunc func(a, b []float32) float32

// Similarity returns the similarity function for "cosine" or "dot".
func Similarity(name string) (SimilarityFunc, error) {
	switch name {
	case "cosine":
		return Cosine, nil
	case "dot":
		return Dot, nil
	default:
		return nil, errors.ValidationError("unknown similarity function: " + name)
	}
}

// Dot returns the inner product of a and b.
func Dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero.
func Cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Argmax returns the index of the highest score of query against candidates.
// Ties resolve to the lowest index.
func Argmax(sim SimilarityFunc, query []float32, candidates [][]float32) int {
	best := -1
	var bestScore float32
	for i, c := range candidates {
		s := sim(query, c)
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// Sigmoid maps a logit to a probability, clamped against overflow.
func Sigmoid(x float32) float32 {
	if x > 50 {
		x = 50
	} else if x < -50 {
		x = -50
	}
	return 1 / (1 + float32(math.Exp(float64(-x))))
}
