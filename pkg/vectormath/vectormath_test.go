package vectormath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("unit length result", func(t *testing.T) {
		v, ok := Normalize([]float32{3, 4})
		require.True(t, ok)
		assert.InDelta(t, 1.0, Norm(v), 1e-6)
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v, ok := Normalize([]float32{0, 0, 0})
		assert.False(t, ok)
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("already normalized stays normalized", func(t *testing.T) {
		v, ok := Normalize([]float32{1, 0, 0})
		require.True(t, ok)
		assert.True(t, IsNormalized(v))
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors score one", func(t *testing.T) {
		v := []float32{0.2, 0.5, 0.7, 0.1}
		assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
	})

	t.Run("opposite vectors clamp to zero", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{-1, 0}
		assert.Equal(t, 0.0, CosineSimilarity(a, b))
	})

	t.Run("orthogonal vectors score zero", func(t *testing.T) {
		a := []float32{1, 0}
		b := []float32{0, 1}
		assert.InDelta(t, 0.0, CosineSimilarity(a, b), 1e-9)
	})

	t.Run("dimension mismatch scores zero", func(t *testing.T) {
		a := []float32{1, 0, 0}
		b := []float32{1, 0}
		assert.Equal(t, 0.0, CosineSimilarity(a, b))
	})

	t.Run("never exceeds bounds", func(t *testing.T) {
		a := []float32{0.577350, 0.577350, 0.577350}
		s := CosineSimilarity(a, a)
		assert.LessOrEqual(t, s, 1.0)
		assert.GreaterOrEqual(t, s, 0.0)
	})
}

func TestNorm(t *testing.T) {
	assert.Equal(t, 0.0, Norm(nil))
	assert.InDelta(t, math.Sqrt(2), Norm([]float32{1, 1}), 1e-9)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.3))
	assert.Equal(t, 1.0, Clamp01(1.00001))
	assert.Equal(t, 0.5, Clamp01(0.5))
}
