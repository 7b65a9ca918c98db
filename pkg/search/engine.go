// Package search composes extraction, storage and caching into the
// end-to-end visual similarity search operation.
package search

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
)

// ProductLookup resolves display fields for a matched source image. It is a
// collaborator contract owned elsewhere; this subsystem treats it as an
// opaque lookup and tolerates its absence.
type ProductLookup interface {
	Lookup(ctx context.Context, sourceImageID string) (map[string]any, error)
}

// RateLimiterSearch names the limiter shared by interactive searches.
const RateLimiterSearch = "search"

// Config tunes the engine.
type Config struct {
	// CandidateCap bounds the ranked candidate list used for pagination.
	CandidateCap int `mapstructure:"candidate_cap"`
	// ResultTTL is the result cache TTL.
	ResultTTL time.Duration `mapstructure:"result_ttl"`
	// SoftDeadline bounds the upper extraction tiers. When it fires the
	// engine answers from the deterministic tier instead of blocking.
	SoftDeadline time.Duration `mapstructure:"soft_deadline"`
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		CandidateCap: embstore.DefaultScanCap,
		ResultTTL:    DefaultResultTTL,
		SoftDeadline: 20 * time.Second,
	}
}

// Engine orchestrates one similarity search: result cache, extraction chain,
// cohort-restricted store query, ranking, pagination.
type Engine struct {
	config   Config
	chain    *extraction.Chain
	floor    extraction.Extractor
	store    embstore.Store
	results  *ResultCache
	limiters *resilience.RateLimiterManager
	products ProductLookup
	logger   observability.Logger
	metrics  observability.MetricsClient

	// extractGroup collapses concurrent extractions of the same image so a
	// burst of identical queries costs one inference call.
	extractGroup singleflight.Group
}

// NewEngine wires the search orchestrator. floor must be the tier that
// cannot fail on decodable images; products may be nil.
func NewEngine(
	config Config,
	chain *extraction.Chain,
	floor extraction.Extractor,
	store embstore.Store,
	results *ResultCache,
	limiters *resilience.RateLimiterManager,
	products ProductLookup,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *Engine {
	if config.CandidateCap <= 0 {
		config.CandidateCap = embstore.DefaultScanCap
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &Engine{
		config:   config,
		chain:    chain,
		floor:    floor,
		store:    store,
		results:  results,
		limiters: limiters,
		products: products,
		logger:   logger,
		metrics:  metrics,
	}
}

// Search runs the end-to-end similarity search. A successful search with no
// qualifying matches returns an empty result set; only a total subsystem
// failure returns ErrSearchUnavailable.
func (e *Engine) Search(ctx context.Context, req *models.QueryRequest) (*models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, "VALIDATION", "invalid search request", apperrors.ClassValidation)
	}

	start := time.Now()
	defer func() {
		e.metrics.RecordLatency("similarity_search", time.Since(start))
	}()

	imageHash := HashImage(req.ImageData)
	cacheKey := e.results.Key(imageHash, req.Threshold, req.Page, req.Limit)
	if cached := e.results.Get(ctx, cacheKey); cached != nil {
		e.metrics.IncrementCounter("search_cache_hits_total", 1, map[string]string{})
		return cached, nil
	}

	queryVec, err := e.queryVector(ctx, imageHash, req.ImageData)
	if err != nil {
		if apperrors.ClassOf(err) == apperrors.ClassValidation {
			return nil, err
		}
		return nil, apperrors.Wrap(err, "SEARCH_UNAVAILABLE", "search temporarily unavailable", apperrors.ClassTransient)
	}

	candidates, err := e.store.Search(ctx, queryVec.Vector, queryVec.Cohort(), req.Threshold, e.config.CandidateCap)
	if err != nil {
		e.logger.Error("candidate query failed", map[string]interface{}{
			"cohort": queryVec.Cohort().String(),
			"error":  err.Error(),
		})
		return nil, apperrors.Wrap(err, "SEARCH_UNAVAILABLE", "search temporarily unavailable", apperrors.ClassTransient)
	}

	result := e.paginate(ctx, candidates, req, queryVec)
	e.results.Put(ctx, cacheKey, result)
	return result, nil
}

// queryVector obtains the query feature vector through the tier chain,
// collapsing concurrent identical extractions. When the soft deadline kills
// the upper tiers while the caller is still waiting, the deterministic floor
// answers instead.
func (e *Engine) queryVector(ctx context.Context, imageHash string, imageData []byte) (*extraction.Result, error) {
	v, err, _ := e.extractGroup.Do(imageHash, func() (interface{}, error) {
		if e.limiters != nil {
			if err := e.limiters.Wait(ctx, RateLimiterSearch); err != nil {
				return nil, err
			}
		}

		chainCtx := ctx
		var cancel context.CancelFunc
		if e.config.SoftDeadline > 0 {
			chainCtx, cancel = context.WithTimeout(ctx, e.config.SoftDeadline)
			defer cancel()
		}

		res, err := e.chain.Extract(chainCtx, imageData)
		if err == nil {
			return res, nil
		}
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && e.floor != nil {
			e.logger.Warn("soft deadline hit, answering from deterministic tier", map[string]interface{}{
				"image_hash": imageHash,
			})
			return e.floor.Extract(ctx, imageData)
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	res := v.(*extraction.Result)

	e.metrics.IncrementCounter("search_extractions_total", 1, map[string]string{
		"tier": string(res.Method),
	})
	return res, nil
}

// paginate filters, orders and windows the ranked candidates. The store
// already returns candidates at or above the threshold sorted by score
// descending with newest-first tie-breaks, so the full list is reproducible
// across pages of the same snapshot.
func (e *Engine) paginate(ctx context.Context, candidates []embstore.Candidate, req *models.QueryRequest, queryVec *extraction.Result) *models.SearchResult {
	total := len(candidates)

	startIdx := (req.Page - 1) * req.Limit
	if startIdx > total {
		startIdx = total
	}
	endIdx := startIdx + req.Limit
	if endIdx > total {
		endIdx = total
	}

	matches := make([]models.SimilarityMatch, 0, endIdx-startIdx)
	for _, cand := range candidates[startIdx:endIdx] {
		match := models.SimilarityMatch{
			EmbeddingID:   cand.ID,
			SourceImageID: cand.SourceImageID,
			Score:         cand.Score,
			ScorePercent:  cand.Score * 100,
		}
		if e.products != nil {
			if fields, err := e.products.Lookup(ctx, cand.SourceImageID); err == nil {
				match.Product = fields
			} else {
				e.logger.Debug("product lookup failed", map[string]interface{}{
					"source_image_id": cand.SourceImageID,
					"error":           err.Error(),
				})
			}
		}
		matches = append(matches, match)
	}

	return &models.SearchResult{
		Matches: matches,
		Pagination: models.Pagination{
			Page:  req.Page,
			Limit: req.Limit,
			Total: total,
		},
		Metadata: models.SearchMetadata{
			ThresholdUsed:        req.Threshold,
			QueryVectorDimension: queryVec.Dimension,
			ExtractionMethodUsed: queryVec.Method,
		},
	}
}
