package extraction

import (
	"context"

	apperrors "github.com/Dushime20/urutibiz-backend-sub011/pkg/errors"
	"github.com/Dushime20/urutibiz-backend-sub011/pkg/observability"
)

// TierFailure records why one tier was skipped during a chain run.
type TierFailure struct {
	Tier  string
	Cause error
}

// Chain tries extraction tiers in priority order and returns the first
// success. Per-tier failures are absorbed and logged; only a validation
// error (the image itself is bad, so no tier can do better) or exhaustion of
// every tier surfaces to the caller.
type Chain struct {
	tiers  []Extractor
	logger observability.Logger
}

// NewChain creates a chain over tiers in the given priority order.
func NewChain(logger observability.Logger, tiers ...Extractor) *Chain {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Chain{tiers: tiers, logger: logger}
}

// Extract runs the chain. The returned Result is tagged with the tier that
// produced it, so callers can restrict comparisons to the matching cohort.
func (c *Chain) Extract(ctx context.Context, imageData []byte) (*Result, error) {
	var failures []TierFailure

	for _, tier := range c.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := tier.Extract(ctx, imageData)
		if err == nil {
			if len(failures) > 0 {
				c.logger.Info("extraction degraded to lower tier", map[string]interface{}{
					"tier":         string(tier.Method()),
					"tiers_failed": len(failures),
				})
			}
			return res, nil
		}

		if apperrors.ClassOf(err) == apperrors.ClassValidation {
			// A bad image fails every tier the same way.
			return nil, err
		}

		failures = append(failures, TierFailure{Tier: string(tier.Method()), Cause: err})
		c.logger.Warn("extraction tier failed", map[string]interface{}{
			"tier":  string(tier.Method()),
			"error": err.Error(),
		})
	}

	// The signal tier accepts any decodable image, so reaching this point
	// means the chain was misconfigured or the context died.
	return nil, apperrors.Wrap(lastCause(failures), "EXTRACTION_UNAVAILABLE",
		"all extraction tiers exhausted", apperrors.ClassTransient)
}

func lastCause(failures []TierFailure) error {
	if len(failures) == 0 {
		return apperrors.ErrExtractionUnavailable
	}
	return failures[len(failures)-1].Cause
}
