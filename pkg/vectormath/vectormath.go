// Package vectormath implements normalization and similarity scoring for
// feature vectors. Scores are clamped to [0,1]: opposite-direction vectors
// mean "no match", not a negative match strength.
package vectormath

import (
	"math"
)

// Epsilon is the tolerance used when checking unit length.
const Epsilon = 1e-6

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns an L2-normalized copy of v and true. The all-zero vector
// has no direction, so it is returned unchanged with false: callers must tag
// such embeddings as non-normalized.
func Normalize(v []float32) ([]float32, bool) {
	n := Norm(v)
	if n == 0 {
		return v, false
	}
	out := make([]float32, len(v))
	inv := 1.0 / n
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out, true
}

// IsNormalized reports whether v has unit L2 norm within Epsilon.
func IsNormalized(v []float32) bool {
	return math.Abs(Norm(v)-1.0) < Epsilon
}

// Dot returns the dot product of two equal-length vectors.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CosineSimilarity returns the clamped cosine similarity of a and b.
//
// Vectors of different dimensions live in incompatible feature spaces;
// padding or truncating one to force a comparison fabricates similarity, so
// a dimension mismatch scores 0. Callers that want the mismatch surfaced
// should check dimensions first or use Ranker, which logs the skip.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Clamp01(Dot(a, b) / (na * nb))
}

// Clamp01 clamps s into [0,1].
func Clamp01(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
