package models

import "fmt"

// Query parameter bounds for the search endpoint.
const (
	MaxSearchLimit     = 100
	DefaultSearchLimit = 20
)

// QueryRequest is a validated similarity search request. Exactly one of
// ImageData or ImageURL carries the query image.
type QueryRequest struct {
	ImageData []byte  `json:"-"`
	ImageURL  string  `json:"image_url,omitempty"`
	Threshold float64 `json:"threshold"`
	Page      int     `json:"page"`
	Limit     int     `json:"limit"`
}

// Validate checks parameter ranges and that an image source is present.
func (q *QueryRequest) Validate() error {
	if len(q.ImageData) == 0 && q.ImageURL == "" {
		return fmt.Errorf("query: an image file or image_url is required")
	}
	if q.Threshold < 0 || q.Threshold > 1 {
		return fmt.Errorf("query: threshold %.3f out of range [0,1]", q.Threshold)
	}
	if q.Page < 1 {
		return fmt.Errorf("query: page must be >= 1, got %d", q.Page)
	}
	if q.Limit < 1 || q.Limit > MaxSearchLimit {
		return fmt.Errorf("query: limit must be in [1,%d], got %d", MaxSearchLimit, q.Limit)
	}
	return nil
}

// SimilarityMatch is one ranked search hit.
type SimilarityMatch struct {
	EmbeddingID   string         `json:"embedding_id"`
	SourceImageID string         `json:"source_image_id"`
	Score         float64        `json:"score"`
	ScorePercent  float64        `json:"score_percent"`
	Product       map[string]any `json:"product,omitempty"`
}

// Pagination describes the page window of a search result.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// SearchMetadata records how a search result was produced.
type SearchMetadata struct {
	ThresholdUsed        float64          `json:"threshold_used"`
	QueryVectorDimension int              `json:"query_vector_dimension"`
	ExtractionMethodUsed ExtractionMethod `json:"extraction_method_used"`
}

// SearchResult is the full response of one similarity search.
type SearchResult struct {
	Matches    []SimilarityMatch `json:"matches"`
	Pagination Pagination        `json:"pagination"`
	Metadata   SearchMetadata    `json:"metadata"`
}
