// Package models defines the shared data types for the visual similarity
// search subsystem.
package models

import (
	"fmt"
	"time"
)

// ExtractionMethod identifies which extraction tier produced an embedding.
type ExtractionMethod string

// Extraction tiers, ordered from most to least preferred.
const (
	MethodPrimary   ExtractionMethod = "primary"   // remote inference service (CLIP, 512-d)
	MethodFallback2 ExtractionMethod = "fallback2" // in-process compact vision model (1280-d)
	MethodFallback3 ExtractionMethod = "fallback3" // deterministic signal features (256-d)
)

// Rank returns the preference rank of the method; lower is better.
func (m ExtractionMethod) Rank() int {
	switch m {
	case MethodPrimary:
		return 0
	case MethodFallback2:
		return 1
	case MethodFallback3:
		return 2
	default:
		return 3
	}
}

// Valid reports whether m is a known extraction method.
func (m ExtractionMethod) Valid() bool {
	return m == MethodPrimary || m == MethodFallback2 || m == MethodFallback3
}

// Cohort identifies the set of embeddings that are safe to compare directly.
// Embeddings are only ever compared within the same cohort.
type Cohort struct {
	Method    ExtractionMethod `json:"method"`
	Dimension int              `json:"dimension"`
}

// String returns a stable string form used in log fields and cache keys.
func (c Cohort) String() string {
	return fmt.Sprintf("%s/%d", c.Method, c.Dimension)
}

// ImageEmbedding is a stored feature vector for a source image.
// Embeddings are immutable: a tier upgrade inserts a replacement record and
// supersedes the old one, it never mutates in place.
type ImageEmbedding struct {
	ID               string           `json:"id" db:"id"`
	SourceImageID    string           `json:"source_image_id" db:"source_image_id"`
	Vector           []float32        `json:"vector,omitempty" db:"-"`
	Dimension        int              `json:"dimension" db:"dimension"`
	ExtractionMethod ExtractionMethod `json:"extraction_method" db:"extraction_method"`
	Normalized       bool             `json:"normalized" db:"normalized"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// Cohort returns the comparison cohort the embedding belongs to.
func (e *ImageEmbedding) Cohort() Cohort {
	return Cohort{Method: e.ExtractionMethod, Dimension: e.Dimension}
}

// Validate checks the structural invariants of the embedding.
func (e *ImageEmbedding) Validate() error {
	if e.SourceImageID == "" {
		return fmt.Errorf("embedding: source image id is required")
	}
	if !e.ExtractionMethod.Valid() {
		return fmt.Errorf("embedding: unknown extraction method %q", e.ExtractionMethod)
	}
	if len(e.Vector) != e.Dimension {
		return fmt.Errorf("embedding: vector length %d does not match dimension %d", len(e.Vector), e.Dimension)
	}
	return nil
}
