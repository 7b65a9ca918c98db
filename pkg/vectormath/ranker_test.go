package vectormath

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
)

func embedding(id string, vec []float32, createdAt time.Time) *models.ImageEmbedding {
	v, _ := Normalize(vec)
	return &models.ImageEmbedding{
		ID:               id,
		SourceImageID:    "img-" + id,
		Vector:           v,
		Dimension:        len(v),
		ExtractionMethod: models.MethodPrimary,
		Normalized:       true,
		CreatedAt:        createdAt,
	}
}

func TestRankOrderingAndThreshold(t *testing.T) {
	now := time.Now()
	query := []float32{1, 0, 0, 0}
	candidates := []*models.ImageEmbedding{
		embedding("far", []float32{0, 1, 0, 0}, now),
		embedding("close", []float32{0.9, 0.1, 0, 0}, now),
		embedding("exact", []float32{1, 0, 0, 0}, now),
		embedding("mid", []float32{0.6, 0.8, 0, 0}, now),
	}

	ranked := NewRanker(nil).Rank(query, candidates, 0.5)

	require.Len(t, ranked, 3)
	assert.Equal(t, "exact", ranked[0].Embedding.ID)
	assert.Equal(t, "close", ranked[1].Embedding.ID)
	assert.Equal(t, "mid", ranked[2].Embedding.ID)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}
	for _, s := range ranked {
		assert.GreaterOrEqual(t, s.Score, 0.5)
	}
}

func TestRankTieBreaksByRecency(t *testing.T) {
	now := time.Now()
	vec := []float32{1, 0, 0, 0}
	candidates := []*models.ImageEmbedding{
		embedding("older", vec, now.Add(-time.Hour)),
		embedding("newer", vec, now),
	}

	ranked := NewRanker(nil).Rank(vec, candidates, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "newer", ranked[0].Embedding.ID)
	assert.Equal(t, "older", ranked[1].Embedding.ID)
}

func TestRankSkipsMismatchedDimensions(t *testing.T) {
	now := time.Now()
	candidates := []*models.ImageEmbedding{
		embedding("match", []float32{1, 0, 0, 0}, now),
		embedding("short", []float32{1, 0}, now),
	}

	ranked := NewRanker(nil).Rank([]float32{1, 0, 0, 0}, candidates, 0)

	require.Len(t, ranked, 1)
	assert.Equal(t, "match", ranked[0].Embedding.ID)
}

func TestRankZeroQuery(t *testing.T) {
	candidates := []*models.ImageEmbedding{
		embedding("a", []float32{1, 0}, time.Now()),
	}
	assert.Nil(t, NewRanker(nil).Rank([]float32{0, 0}, candidates, 0))
}
