package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/vectormath"
)

func TestSignalExtractorDeterministic(t *testing.T) {
	data := testImagePNG(t, 120, 90, 7)
	ex := NewSignalExtractor()

	first, err := ex.Extract(context.Background(), data)
	require.NoError(t, err)
	second, err := ex.Extract(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector, "same input must give identical features")
}

func TestSignalExtractorShape(t *testing.T) {
	res, err := NewSignalExtractor().Extract(context.Background(), testImagePNG(t, 64, 64, 0))
	require.NoError(t, err)

	assert.Equal(t, models.MethodFallback3, res.Method)
	assert.Equal(t, SignalDimension, res.Dimension)
	assert.Len(t, res.Vector, SignalDimension)
	assert.True(t, res.Normalized)
	assert.InDelta(t, 1.0, vectormath.Norm(res.Vector), 1e-5)
}

func TestSignalExtractorDistinguishesImages(t *testing.T) {
	ex := NewSignalExtractor()
	a, err := ex.Extract(context.Background(), testImagePNG(t, 64, 64, 0))
	require.NoError(t, err)
	b, err := ex.Extract(context.Background(), testImagePNG(t, 64, 64, 128))
	require.NoError(t, err)

	assert.NotEqual(t, a.Vector, b.Vector)
}

func TestSignalExtractorRejectsGarbage(t *testing.T) {
	_, err := NewSignalExtractor().Extract(context.Background(), []byte("not an image"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ClassValidation, apperrors.ClassOf(err))
}

func TestSignalExtractorHandlesOddSizes(t *testing.T) {
	// Non-square and sub-grid inputs still produce the full feature vector.
	for _, dims := range [][2]int{{17, 300}, {300, 17}, {1, 1}} {
		res, err := NewSignalExtractor().Extract(context.Background(), testImagePNG(t, dims[0], dims[1], 3))
		require.NoError(t, err)
		assert.Len(t, res.Vector, SignalDimension)
	}
}
