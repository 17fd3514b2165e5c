package venue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// fixedVenue returns a constant quote and execution result.
type fixedVenue struct {
	id       domain.VenueID
	quote    domain.Quote
	quoteErr error
}

func (v *fixedVenue) ID() domain.VenueID { return v.id }

func (v *fixedVenue) GetQuote(context.Context, string, string, float64) (domain.Quote, error) {
	if v.quoteErr != nil {
		return domain.Quote{}, v.quoteErr
	}
	return v.quote, nil
}

func (v *fixedVenue) ExecuteTrade(_ context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	return domain.ExecutionResult{
		TxHash:        "0x" + intent.OrderID,
		ExecutedPrice: v.quote.Price,
		VenueID:       v.id,
	}, nil
}

func TestRouterPreservesRegistrationOrder(t *testing.T) {
	r := NewRouter(
		&fixedVenue{id: "A", quote: domain.Quote{VenueID: "A", Price: 100, Fee: 0.003}},
		&fixedVenue{id: "B", quote: domain.Quote{VenueID: "B", Price: 98, Fee: 0.002}},
	)

	assert.Equal(t, []domain.VenueID{"A", "B"}, r.VenueIDs())

	quotes, err := r.QuoteAll(context.Background(), "USDC", "WETH", 10)
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, domain.VenueID("A"), quotes[0].VenueID)
	assert.Equal(t, domain.VenueID("B"), quotes[1].VenueID)
}

func TestRouterQuoteAllPropagatesFailure(t *testing.T) {
	cause := errors.New("feed down")
	r := NewRouter(
		&fixedVenue{id: "A", quote: domain.Quote{VenueID: "A", Price: 100}},
		&fixedVenue{id: "B", quoteErr: cause},
	)

	_, err := r.QuoteAll(context.Background(), "USDC", "WETH", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "quote from B")
}

func TestRouterQuoteAllRequiresVenues(t *testing.T) {
	r := NewRouter()
	_, err := r.QuoteAll(context.Background(), "USDC", "WETH", 10)
	require.Error(t, err)
}

func TestRouterRejectsUnknownVenue(t *testing.T) {
	r := NewRouter(&fixedVenue{id: "A"})

	_, err := r.GetQuote(context.Background(), "Z", "USDC", "WETH", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown venue "Z"`)

	_, err = r.ExecuteTrade(context.Background(), "Z", domain.OrderIntent{OrderID: "o"})
	require.Error(t, err)
}

func TestRouterExecuteTrade(t *testing.T) {
	r := NewRouter(&fixedVenue{id: "B", quote: domain.Quote{VenueID: "B", Price: 98}})

	res, err := r.ExecuteTrade(context.Background(), "B", domain.OrderIntent{OrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.VenueID("B"), res.VenueID)
	assert.Equal(t, "0xord-1", res.TxHash)
}

func TestEffectiveCost(t *testing.T) {
	a := domain.Quote{VenueID: "A", Price: 100.0, Fee: 0.003}
	b := domain.Quote{VenueID: "B", Price: 98.0, Fee: 0.002}

	assert.InDelta(t, 100.3, a.EffectiveCost(), 1e-9)
	assert.InDelta(t, 98.196, b.EffectiveCost(), 1e-9)
	assert.Less(t, b.EffectiveCost(), a.EffectiveCost())
}
