// Package venue implements the venue router: a registry of liquidity venues
// with quote retrieval and trade execution, plus concurrent quote fan-out.
package venue

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// Router dispatches quote and execution calls to registered venues. Venues
// are kept in registration order; that order is canonical and breaks
// effective-cost ties during selection.
type Router struct {
	venues []domain.Venue
	byID   map[domain.VenueID]domain.Venue
}

// NewRouter creates a Router over the given venues. Registration order is
// preserved as the canonical venue order.
func NewRouter(venues ...domain.Venue) *Router {
	r := &Router{
		byID: make(map[domain.VenueID]domain.Venue, len(venues)),
	}
	for _, v := range venues {
		r.venues = append(r.venues, v)
		r.byID[v.ID()] = v
	}
	return r
}

// VenueIDs returns the venue ids in canonical order.
func (r *Router) VenueIDs() []domain.VenueID {
	ids := make([]domain.VenueID, 0, len(r.venues))
	for _, v := range r.venues {
		ids = append(ids, v.ID())
	}
	return ids
}

// GetQuote requests a quote from a single venue.
func (r *Router) GetQuote(ctx context.Context, id domain.VenueID, tokenIn, tokenOut string, amountIn float64) (domain.Quote, error) {
	v, ok := r.byID[id]
	if !ok {
		return domain.Quote{}, fmt.Errorf("venue: unknown venue %q", id)
	}
	q, err := v.GetQuote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("venue: quote from %s: %w", id, err)
	}
	return q, nil
}

// QuoteAll requests quotes from every registered venue concurrently and
// returns them in canonical order. If any venue fails, the first error is
// returned and the remaining in-flight requests are cancelled.
func (r *Router) QuoteAll(ctx context.Context, tokenIn, tokenOut string, amountIn float64) ([]domain.Quote, error) {
	if len(r.venues) == 0 {
		return nil, fmt.Errorf("venue: no venues registered")
	}

	quotes := make([]domain.Quote, len(r.venues))
	g, ctx := errgroup.WithContext(ctx)

	for i, v := range r.venues {
		g.Go(func() error {
			q, err := v.GetQuote(ctx, tokenIn, tokenOut, amountIn)
			if err != nil {
				return fmt.Errorf("venue: quote from %s: %w", v.ID(), err)
			}
			quotes[i] = q
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// ExecuteTrade executes the intent on the given venue.
func (r *Router) ExecuteTrade(ctx context.Context, id domain.VenueID, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	v, ok := r.byID[id]
	if !ok {
		return domain.ExecutionResult{}, fmt.Errorf("venue: unknown venue %q", id)
	}
	res, err := v.ExecuteTrade(ctx, intent)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("venue: execute on %s: %w", id, err)
	}
	return res, nil
}
