package quotes

import (
	"context"

	"golang.org/x/sync/errgroup"

	"portfolio-tracker/internal/models"
)

// ResolveAll resolves every instrument concurrently. The batch is best
// effort: a failed instrument carries its error in its own result and never
// fails the others. Results are returned in input order.
func (r *Resolver) ResolveAll(ctx context.Context, ids []models.InstrumentID, period models.Period) []models.QuoteResult {
	return r.batch(ctx, ids, func(ctx context.Context, id models.InstrumentID) models.QuoteResult {
		return r.ResolveResult(ctx, id, period)
	})
}

// RefreshAll is ResolveAll ignoring store freshness.
func (r *Resolver) RefreshAll(ctx context.Context, ids []models.InstrumentID, period models.Period) []models.QuoteResult {
	return r.batch(ctx, ids, func(ctx context.Context, id models.InstrumentID) models.QuoteResult {
		return r.Refresh(ctx, id, period)
	})
}

func (r *Resolver) batch(ctx context.Context, ids []models.InstrumentID, fn func(context.Context, models.InstrumentID) models.QuoteResult) []models.QuoteResult {
	results := make([]models.QuoteResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if r.cfg.Concurrency > 0 {
		g.SetLimit(r.cfg.Concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			results[i] = fn(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Failed returns the results that carry an error.
func Failed(results []models.QuoteResult) []models.QuoteResult {
	var failed []models.QuoteResult
	for _, res := range results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}
