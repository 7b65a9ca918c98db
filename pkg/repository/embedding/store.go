// Package embedding provides persistence for image feature vectors with two
// query strategies: native pgvector ranking when the extension is available,
// and a capped scan with in-process scoring when it is not.
package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
)

// ErrNotFound is returned when no embedding matches the given id.
var ErrNotFound = errors.New("embedding not found")

// DefaultScanCap bounds the candidate set fetched by the scan fallback.
const DefaultScanCap = 1000

// Candidate is one ranked hit from a similarity query. The raw vector is
// never carried here: the native path only ever fetches identifiers,
// metadata and scores.
type Candidate struct {
	ID            string    `db:"id"`
	SourceImageID string    `db:"source_image_id"`
	Score         float64   `db:"score"`
	CreatedAt     time.Time `db:"created_at"`
}

// BacklogItem is a source image the precompute worker should (re)process.
type BacklogItem struct {
	SourceImageID string `db:"source_image_id"`
	// CurrentMethod is empty when the image has no embedding at all.
	CurrentMethod models.ExtractionMethod `db:"current_method"`
}

// Store defines persistence and query operations over stored embeddings.
type Store interface {
	// Create stores a new embedding.
	Create(ctx context.Context, emb *models.ImageEmbedding) error

	// Get retrieves an embedding by id, including its vector.
	Get(ctx context.Context, id string) (*models.ImageEmbedding, error)

	// Delete removes an embedding by id.
	Delete(ctx context.Context, id string) error

	// DeleteBySourceImage removes all embeddings of a source image (cascade
	// ownership: the image owns its embedding).
	DeleteBySourceImage(ctx context.Context, sourceImageID string) error

	// Replace supersedes all existing embeddings of the source image with
	// emb in one transaction. Used for tier upgrades.
	Replace(ctx context.Context, emb *models.ImageEmbedding) error

	// Search returns candidates of the query's cohort scoring at or above
	// threshold, ranked by score descending (ties: newest first), at most
	// limit rows. Embeddings from other cohorts are never considered.
	Search(ctx context.Context, queryVector []float32, cohort models.Cohort, threshold float64, limit int) ([]Candidate, error)

	// ListBacklog returns up to batchSize source images that have no
	// embedding, or whose best embedding ranks below preferred.
	ListBacklog(ctx context.Context, preferred models.ExtractionMethod, batchSize int) ([]BacklogItem, error)
}
