// Package worker implements the background job that backfills and upgrades
// stored embeddings using the same extraction chain as interactive search.
package worker

import (
	"context"
	"time"

	"github.com/Dushime20/urutibiz-backend-sub011/pkg/extraction"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/models"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
	embstore "github.com/Dushime20/urutibiz-backend-sub011/pkg/repository/embedding"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/resilience"
)

// ImageResolver loads the bytes of a source image. It is a collaborator
// contract owned by the media subsystem; this worker treats it as opaque.
type ImageResolver interface {
	Resolve(ctx context.Context, sourceImageID string) ([]byte, error)
}

// Batcher extracts features for several images in one request against the
// primary tier. Per-image failures come back as nil slots.
type Batcher interface {
	ExtractBatch(ctx context.Context, images [][]byte) ([]*extraction.Result, error)
}

// RateLimiterWorker names the limiter for background extraction, independent
// from the interactive search limiter so backfill never starves foreground
// traffic on the shared inference service.
const RateLimiterWorker = "precompute"

// Config tunes the precompute worker.
type Config struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
	// Preferred is the tier the catalog should converge to.
	Preferred models.ExtractionMethod `mapstructure:"preferred"`
}

// DefaultConfig returns the default worker settings.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		BatchSize: 10,
		Preferred: models.MethodPrimary,
	}
}

// PrecomputeWorker periodically scans for source images lacking an embedding
// or carrying one below the preferred tier, and processes them in small
// bounded batches. The job is idempotent: each run recomputes the same
// "missing or outdated" set, and individual failures are skipped to be
// retried on the next run.
type PrecomputeWorker struct {
	config   Config
	store    embstore.Store
	chain    *extraction.Chain
	batcher  Batcher
	resolver ImageResolver
	limiters *resilience.RateLimiterManager
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewPrecomputeWorker wires the worker. When batcher is non-nil each cycle
// first tries a single batched request; images the batch cannot answer fall
// back to the per-image chain.
func NewPrecomputeWorker(
	config Config,
	store embstore.Store,
	chain *extraction.Chain,
	batcher Batcher,
	resolver ImageResolver,
	limiters *resilience.RateLimiterManager,
	logger observability.Logger,
	metrics observability.MetricsClient,
) *PrecomputeWorker {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if !config.Preferred.Valid() {
		config.Preferred = models.MethodPrimary
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &PrecomputeWorker{
		config:   config,
		store:    store,
		chain:    chain,
		batcher:  batcher,
		resolver: resolver,
		limiters: limiters,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run executes scan cycles until ctx is cancelled.
func (w *PrecomputeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("precompute worker started", map[string]interface{}{
		"interval":   w.config.Interval.String(),
		"batch_size": w.config.BatchSize,
		"preferred":  string(w.config.Preferred),
	})

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("precompute cycle failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce processes a single batch of the backlog. It returns an error only
// when the backlog itself cannot be read; per-image failures are logged and
// skipped.
func (w *PrecomputeWorker) RunOnce(ctx context.Context) error {
	backlog, err := w.store.ListBacklog(ctx, w.config.Preferred, w.config.BatchSize)
	if err != nil {
		return err
	}
	if len(backlog) == 0 {
		return nil
	}

	w.logger.Info("processing embedding backlog", map[string]interface{}{
		"count": len(backlog),
	})

	var processed, skipped int
	resolved := make([][]byte, len(backlog))
	for i, item := range backlog {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := w.resolver.Resolve(ctx, item.SourceImageID)
		if err != nil {
			skipped++
			w.logger.Warn("skipping unresolvable image, will retry next run", map[string]interface{}{
				"source_image_id": item.SourceImageID,
				"error":           err.Error(),
			})
			continue
		}
		resolved[i] = data
	}

	results := w.batchExtract(ctx, resolved)

	for i, item := range backlog {
		if resolved[i] == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res := results[i]
		if res == nil {
			var err error
			res, err = w.extractOne(ctx, resolved[i])
			if err != nil {
				skipped++
				w.logger.Warn("skipping image, will retry next run", map[string]interface{}{
					"source_image_id": item.SourceImageID,
					"error":           err.Error(),
				})
				continue
			}
		}

		if err := w.persist(ctx, item, res); err != nil {
			skipped++
			w.logger.Warn("skipping image, will retry next run", map[string]interface{}{
				"source_image_id": item.SourceImageID,
				"error":           err.Error(),
			})
			continue
		}
		processed++
	}

	w.metrics.IncrementCounter("precompute_processed_total", float64(processed), map[string]string{})
	w.metrics.IncrementCounter("precompute_skipped_total", float64(skipped), map[string]string{})
	return nil
}

// batchExtract covers as much of the cycle as possible with one request to
// the primary tier. It always returns a slice aligned with images; slots the
// batch could not answer stay nil and fall back to the per-image chain.
func (w *PrecomputeWorker) batchExtract(ctx context.Context, images [][]byte) []*extraction.Result {
	results := make([]*extraction.Result, len(images))
	if w.batcher == nil {
		return results
	}

	payload := make([][]byte, 0, len(images))
	indexes := make([]int, 0, len(images))
	for i, img := range images {
		if img != nil {
			payload = append(payload, img)
			indexes = append(indexes, i)
		}
	}
	if len(payload) == 0 {
		return results
	}

	if w.limiters != nil {
		if err := w.limiters.Wait(ctx, RateLimiterWorker); err != nil {
			return results
		}
	}
	out, err := w.batcher.ExtractBatch(ctx, payload)
	if err != nil {
		w.logger.Warn("batch extraction failed, falling back per image", map[string]interface{}{
			"count": len(payload),
			"error": err.Error(),
		})
		return results
	}
	for j, res := range out {
		if j < len(indexes) {
			results[indexes[j]] = res
		}
	}
	return results
}

func (w *PrecomputeWorker) extractOne(ctx context.Context, data []byte) (*extraction.Result, error) {
	if w.limiters != nil {
		if err := w.limiters.Wait(ctx, RateLimiterWorker); err != nil {
			return nil, err
		}
	}
	return w.chain.Extract(ctx, data)
}

func (w *PrecomputeWorker) persist(ctx context.Context, item embstore.BacklogItem, res *extraction.Result) error {
	// Idempotency: if extraction degraded to a tier no better than what is
	// already stored, keep the current record and let the next run retry.
	if item.CurrentMethod.Valid() && res.Method.Rank() >= item.CurrentMethod.Rank() {
		w.logger.Debug("embedding already at best reachable tier", map[string]interface{}{
			"source_image_id": item.SourceImageID,
			"current":         string(item.CurrentMethod),
			"extracted":       string(res.Method),
		})
		return nil
	}

	emb := &models.ImageEmbedding{
		SourceImageID:    item.SourceImageID,
		Vector:           res.Vector,
		Dimension:        res.Dimension,
		ExtractionMethod: res.Method,
		Normalized:       res.Normalized,
	}

	// Upgrades replace the superseded record in one transaction; fresh
	// images get a plain insert.
	if item.CurrentMethod.Valid() {
		return w.store.Replace(ctx, emb)
	}
	return w.store.Create(ctx, emb)
}
