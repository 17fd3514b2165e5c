// Package processor implements the per-attempt order processing state
// machine: routing, venue selection, execution, and lifecycle event emission.
package processor

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/sink"
	"github.com/alanyoungcy/swapd/internal/venue"
)

// Processor drives one attempt of an order through the lifecycle
// routing → building → submitted → confirmed, or to failed on any
// execution-path error. Each attempt is independent: a retry restarts from
// routing and emits its own full event sequence stamped with its attempt
// number. The processor holds no per-order state and performs no locking;
// retry policy and concurrency bounds belong to the scheduler that invokes
// it.
type Processor struct {
	router *venue.Router
	sinks  *sink.Fanout
	logger *slog.Logger
}

// New creates a Processor over the given venue router and event sinks.
func New(router *venue.Router, sinks *sink.Fanout, logger *slog.Logger) *Processor {
	return &Processor{
		router: router,
		sinks:  sinks,
		logger: logger.With(slog.String("component", "processor")),
	}
}

// Process runs one attempt for the intent. previousAttemptsMade is the
// scheduler's zero-based counter of prior deliveries; the attempt executed
// here is previousAttemptsMade + 1.
//
// Exactly one of the returned Outcome and error is set. An error return
// signals the scheduler to retry (or give up), except for
// domain.ErrMissingOrderID which is a terminal validation failure emitted
// before any side effect.
func (p *Processor) Process(ctx context.Context, intent domain.OrderIntent, previousAttemptsMade int) (domain.Outcome, error) {
	if intent.OrderID == "" {
		return domain.Outcome{}, domain.ErrMissingOrderID
	}

	attempt := previousAttemptsMade + 1
	log := p.logger.With(
		slog.String("order_id", intent.OrderID),
		slog.Int("attempt", attempt),
	)

	// routing: announce the attempt, then fetch quotes from every venue
	// concurrently.
	p.sinks.Emit(ctx, intent.OrderID, attempt, domain.EventRouting, domain.RoutingPayload{
		Status:  domain.EventRouting,
		Attempt: attempt,
	})

	quotes, err := p.router.QuoteAll(ctx, intent.TokenIn, intent.TokenOut, intent.AmountIn)
	if err != nil {
		return domain.Outcome{}, p.fail(ctx, log, intent.OrderID, attempt, err)
	}

	// building: pick the cheapest venue and hand the trade to it.
	chosen := chooseQuote(quotes)
	p.sinks.Emit(ctx, intent.OrderID, attempt, domain.EventBuilding, domain.BuildingPayload{
		Status:  domain.EventBuilding,
		Attempt: attempt,
		Chosen: domain.ChosenQuote{
			VenueID: chosen.VenueID,
			Price:   chosen.Price,
		},
	})

	result, err := p.router.ExecuteTrade(ctx, chosen.VenueID, intent)
	if err != nil {
		return domain.Outcome{}, p.fail(ctx, log, intent.OrderID, attempt, err)
	}

	p.sinks.Emit(ctx, intent.OrderID, attempt, domain.EventSubmitted, domain.SubmittedPayload{
		Status:  domain.EventSubmitted,
		Attempt: attempt,
		TxHash:  result.TxHash,
	})

	outcome := domain.Outcome{
		Status:        "filled",
		TxHash:        result.TxHash,
		ExecutedPrice: result.ExecutedPrice,
		VenueID:       result.VenueID,
		Attempts:      attempt,
		OK:            true,
	}

	// Sink failures here are isolated like everywhere else: the outcome is
	// returned even if both emissions fail.
	p.sinks.Emit(ctx, intent.OrderID, attempt, domain.EventConfirmed, domain.ConfirmedPayload{
		Status:        domain.EventConfirmed,
		Attempts:      attempt,
		TxHash:        result.TxHash,
		ExecutedPrice: result.ExecutedPrice,
		VenueID:       result.VenueID,
		OK:            true,
	})

	log.InfoContext(ctx, "order filled",
		slog.String("venue", string(result.VenueID)),
		slog.String("tx_hash", result.TxHash),
		slog.Float64("executed_price", result.ExecutedPrice),
	)

	return outcome, nil
}

// fail emits the terminal failed event for this attempt and returns the
// original error for the scheduler to act on.
func (p *Processor) fail(ctx context.Context, log *slog.Logger, orderID string, attempt int, cause error) error {
	p.sinks.Emit(ctx, orderID, attempt, domain.EventFailed, domain.FailedPayload{
		Status:  domain.EventFailed,
		Attempt: attempt,
		Error:   cause.Error(),
	})

	log.WarnContext(ctx, "attempt failed",
		slog.String("error", cause.Error()),
	)
	return cause
}

// chooseQuote returns the quote with the lowest effective cost
// (price * (1 + fee)). On an exact tie the earlier quote wins; quotes arrive
// in canonical venue registration order, so the tie-break is deterministic.
func chooseQuote(quotes []domain.Quote) domain.Quote {
	best := quotes[0]
	for _, q := range quotes[1:] {
		if q.EffectiveCost() < best.EffectiveCost() {
			best = q
		}
	}
	return best
}
