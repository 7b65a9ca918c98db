// Package extraction implements the tiered feature extraction chain: the
// remote inference service, an in-process compact vision model, and the
// deterministic signal-feature floor that always succeeds on decodable
// images.
package extraction

import (
	"context"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
)

// Result is a feature vector produced by one extraction tier, already
// normalized and tagged with its cohort.
type Result struct {
	Vector     []float32
	Dimension  int
	Method     models.ExtractionMethod
	Normalized bool
}

// Cohort returns the comparison cohort of the result.
func (r *Result) Cohort() models.Cohort {
	return models.Cohort{Method: r.Method, Dimension: r.Dimension}
}

// Extractor is one tier of the extraction chain. Implementations post-process
// their output with vectormath.Normalize before returning it.
type Extractor interface {
	// Method identifies the tier.
	Method() models.ExtractionMethod

	// Extract produces a feature vector for the encoded image bytes.
	Extract(ctx context.Context, imageData []byte) (*Result, error)
}
