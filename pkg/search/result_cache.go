package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/cache"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// DefaultResultTTL keeps finished pages for a few minutes: long enough to
// absorb repeat queries and pagination, short enough that catalog changes
// show up quickly.
const DefaultResultTTL = 5 * time.Minute

// ResultCache stores finished search pages keyed by the query image content
// hash and the request parameters. Identical keys always hold identical
// values, so concurrent writers racing on a key are harmless.
type ResultCache struct {
	backend cache.Cache
	ttl     time.Duration
	logger  observability.Logger
}

// NewResultCache wraps a cache backend with result-specific keying.
func NewResultCache(backend cache.Cache, ttl time.Duration, logger observability.Logger) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &ResultCache{backend: backend, ttl: ttl, logger: logger}
}

// HashImage returns the content hash identifying a query image.
func HashImage(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return hex.EncodeToString(sum[:])
}

// Key builds the cache key for one search page. The threshold is rendered
// with full float64 precision so distinct thresholds never share a key.
func (c *ResultCache) Key(imageHash string, threshold float64, page, limit int) string {
	return fmt.Sprintf("similarity:%s:t%s:p%d:l%d",
		imageHash, strconv.FormatFloat(threshold, 'g', -1, 64), page, limit)
}

// Get returns the cached page, or nil on miss.
func (c *ResultCache) Get(ctx context.Context, key string) *models.SearchResult {
	if c.backend == nil {
		return nil
	}
	var result models.SearchResult
	err := c.backend.Get(ctx, key, &result)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn("result cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil
	}
	return &result
}

// Put stores a finished page. Cache failures are logged, never surfaced: the
// search result is already computed.
func (c *ResultCache) Put(ctx context.Context, key string, result *models.SearchResult) {
	if c.backend == nil {
		return
	}
	if err := c.backend.Set(ctx, key, result, c.ttl); err != nil {
		c.logger.Warn("result cache write failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
