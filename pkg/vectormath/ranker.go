package vectormath

import (
	"sort"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// Scored pairs an embedding with its similarity score against a query.
type Scored struct {
	Embedding *models.ImageEmbedding
	Score     float64
}

// Ranker performs batch similarity ranking for the scan query path, where
// the store cannot rank natively.
type Ranker struct {
	logger observability.Logger
}

// NewRanker creates a Ranker. A nil logger falls back to a noop logger.
func NewRanker(logger observability.Logger) *Ranker {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Ranker{logger: logger}
}

// Rank scores every candidate against query, drops scores below threshold
// and returns the result sorted by score descending, tie-broken by most
// recently created embedding first.
//
// The query is normalized once up front; each candidate then costs a single
// dot-product pass. Candidates whose dimension differs from the query's are
// rejected before any arithmetic and logged, never padded into comparability.
func (r *Ranker) Rank(query []float32, candidates []*models.ImageEmbedding, threshold float64) []Scored {
	q, ok := Normalize(query)
	if !ok {
		r.logger.Warn("query vector is all-zero, nothing can match", map[string]interface{}{
			"dimension": len(query),
		})
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, cand := range candidates {
		if cand == nil {
			continue
		}
		if len(cand.Vector) != len(q) {
			r.logger.Warn("skipping candidate with mismatched dimension", map[string]interface{}{
				"embedding_id":        cand.ID,
				"candidate_dimension": len(cand.Vector),
				"query_dimension":     len(q),
			})
			continue
		}

		var score float64
		if cand.Normalized {
			score = Clamp01(Dot(q, cand.Vector))
		} else {
			score = CosineSimilarity(q, cand.Vector)
		}
		if score < threshold {
			continue
		}
		scored = append(scored, Scored{Embedding: cand, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Embedding.CreatedAt.After(scored[j].Embedding.CreatedAt)
	})

	return scored
}
