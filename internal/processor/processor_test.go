package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/sink"
	"github.com/alanyoungcy/swapd/internal/venue"
)

// emittedEvent is one recorded sink call.
type emittedEvent struct {
	OrderID string
	Status  domain.EventStatus
	Payload any
}

// recordingSink captures every Emit call and optionally fails them all.
type recordingSink struct {
	mu     sync.Mutex
	events []emittedEvent
	err    error
}

func (s *recordingSink) Emit(_ context.Context, orderID string, status domain.EventStatus, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, emittedEvent{OrderID: orderID, Status: status, Payload: payload})
	return nil
}

func (s *recordingSink) statuses() []domain.EventStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventStatus, len(s.events))
	for i, e := range s.events {
		out[i] = e.Status
	}
	return out
}

// stubVenue is a deterministic venue with fixed quote and execution results.
type stubVenue struct {
	id       domain.VenueID
	quote    domain.Quote
	quoteErr error
	execErr  error

	mu    sync.Mutex
	execs []domain.OrderIntent
}

func (v *stubVenue) ID() domain.VenueID {
	return v.id
}

func (v *stubVenue) GetQuote(context.Context, string, string, float64) (domain.Quote, error) {
	if v.quoteErr != nil {
		return domain.Quote{}, v.quoteErr
	}
	return v.quote, nil
}

func (v *stubVenue) ExecuteTrade(_ context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	if v.execErr != nil {
		return domain.ExecutionResult{}, v.execErr
	}
	v.mu.Lock()
	v.execs = append(v.execs, intent)
	v.mu.Unlock()
	return domain.ExecutionResult{
		TxHash:        "0xdeadbeef",
		ExecutedPrice: v.quote.Price,
		VenueID:       v.id,
	}, nil
}

func (v *stubVenue) execCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.execs)
}

func newStub(id domain.VenueID, price, fee float64) *stubVenue {
	return &stubVenue{
		id:    id,
		quote: domain.Quote{VenueID: id, Price: price, Fee: fee},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(durable, transient domain.EventSink, venues ...domain.Venue) *Processor {
	logger := testLogger()
	return New(venue.NewRouter(venues...), sink.NewFanout(durable, transient, logger), logger)
}

func intent(orderID string) domain.OrderIntent {
	return domain.OrderIntent{OrderID: orderID, TokenIn: "USDC", TokenOut: "WETH", AmountIn: 250}
}

func TestProcessSuccessEmitsLifecycleInOrder(t *testing.T) {
	durable := &recordingSink{}
	transient := &recordingSink{}
	p := newTestProcessor(durable, transient,
		newStub("A", 100.0, 0.003),
		newStub("B", 98.0, 0.002),
	)

	outcome, err := p.Process(context.Background(), intent("ord-1"), 0)
	require.NoError(t, err)

	want := []domain.EventStatus{
		domain.EventRouting,
		domain.EventBuilding,
		domain.EventSubmitted,
		domain.EventConfirmed,
	}
	assert.Equal(t, want, durable.statuses())
	assert.Equal(t, want, transient.statuses())

	assert.True(t, outcome.OK)
	assert.Equal(t, "filled", outcome.Status)
	assert.Equal(t, domain.VenueID("B"), outcome.VenueID)
	assert.Equal(t, 1, outcome.Attempts)
	assert.NotEmpty(t, outcome.TxHash)
}

func TestProcessRoutesToLowestEffectiveCost(t *testing.T) {
	// A: 100 * 1.003 = 100.3, B: 98 * 1.002 = 98.196, so B must win.
	venueA := newStub("A", 100.0, 0.003)
	venueB := newStub("B", 98.0, 0.002)
	durable := &recordingSink{}
	p := newTestProcessor(durable, &recordingSink{}, venueA, venueB)

	_, err := p.Process(context.Background(), intent("ord-route"), 0)
	require.NoError(t, err)

	assert.Equal(t, 0, venueA.execCount())
	assert.Equal(t, 1, venueB.execCount())

	building := durable.events[1].Payload.(domain.BuildingPayload)
	assert.Equal(t, domain.VenueID("B"), building.Chosen.VenueID)
	assert.Equal(t, 98.0, building.Chosen.Price)
}

func TestProcessTieBreaksOnCanonicalOrder(t *testing.T) {
	// Identical effective cost on both venues; the first registered wins.
	venueA := newStub("A", 100.0, 0.002)
	venueB := newStub("B", 100.0, 0.002)
	p := newTestProcessor(&recordingSink{}, &recordingSink{}, venueA, venueB)

	outcome, err := p.Process(context.Background(), intent("ord-tie"), 0)
	require.NoError(t, err)

	assert.Equal(t, domain.VenueID("A"), outcome.VenueID)
	assert.Equal(t, 1, venueA.execCount())
	assert.Equal(t, 0, venueB.execCount())
}

func TestProcessExecutionFailureEmitsSingleFailedEvent(t *testing.T) {
	cause := errors.New("venue rejected order")
	failing := newStub("A", 100.0, 0.003)
	failing.execErr = cause
	durable := &recordingSink{}
	transient := &recordingSink{}
	p := newTestProcessor(durable, transient, failing)

	_, err := p.Process(context.Background(), intent("ord-fail"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)

	want := []domain.EventStatus{
		domain.EventRouting,
		domain.EventBuilding,
		domain.EventFailed,
	}
	assert.Equal(t, want, durable.statuses())
	assert.Equal(t, want, transient.statuses())

	failed := durable.events[2].Payload.(domain.FailedPayload)
	assert.Equal(t, 1, failed.Attempt)
	assert.Contains(t, failed.Error, "venue rejected order")
}

func TestProcessQuoteFailureEmitsFailedAfterRouting(t *testing.T) {
	failing := newStub("A", 100.0, 0.003)
	failing.quoteErr = errors.New("quote feed down")
	durable := &recordingSink{}
	p := newTestProcessor(durable, &recordingSink{}, failing)

	_, err := p.Process(context.Background(), intent("ord-quote-fail"), 0)
	require.Error(t, err)

	assert.Equal(t, []domain.EventStatus{domain.EventRouting, domain.EventFailed}, durable.statuses())
}

func TestProcessStampsAttemptNumber(t *testing.T) {
	durable := &recordingSink{}
	p := newTestProcessor(durable, &recordingSink{}, newStub("A", 100.0, 0.003))

	outcome, err := p.Process(context.Background(), intent("ord-attempt"), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Attempts)

	routing := durable.events[0].Payload.(domain.RoutingPayload)
	assert.Equal(t, 3, routing.Attempt)
	confirmed := durable.events[3].Payload.(domain.ConfirmedPayload)
	assert.Equal(t, 3, confirmed.Attempts)
}

func TestProcessRetryReemitsFullSequence(t *testing.T) {
	durable := &recordingSink{}
	p := newTestProcessor(durable, &recordingSink{}, newStub("A", 100.0, 0.003))

	_, err := p.Process(context.Background(), intent("ord-retry"), 0)
	require.NoError(t, err)
	_, err = p.Process(context.Background(), intent("ord-retry"), 1)
	require.NoError(t, err)

	require.Len(t, durable.events, 8)
	assert.Equal(t, 1, durable.events[0].Payload.(domain.RoutingPayload).Attempt)
	assert.Equal(t, 2, durable.events[4].Payload.(domain.RoutingPayload).Attempt)
	assert.Equal(t, domain.EventRouting, durable.events[4].Status)
	assert.Equal(t, domain.EventConfirmed, durable.events[7].Status)
}

func TestProcessMissingOrderIDFailsBeforeAnyEmission(t *testing.T) {
	durable := &recordingSink{}
	transient := &recordingSink{}
	p := newTestProcessor(durable, transient, newStub("A", 100.0, 0.003))

	_, err := p.Process(context.Background(), domain.OrderIntent{TokenIn: "USDC", TokenOut: "WETH", AmountIn: 1}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingOrderID)
	assert.EqualError(t, err, "job missing orderId")

	assert.Empty(t, durable.events)
	assert.Empty(t, transient.events)
}

func TestProcessDurableSinkFailureDoesNotAffectOutcome(t *testing.T) {
	durable := &recordingSink{err: errors.New("database down")}
	transient := &recordingSink{}
	p := newTestProcessor(durable, transient, newStub("A", 100.0, 0.003))

	outcome, err := p.Process(context.Background(), intent("ord-durable-down"), 0)
	require.NoError(t, err)
	assert.True(t, outcome.OK)

	// The transient sink still saw the full sequence.
	assert.Len(t, transient.events, 4)
}

func TestProcessTransientSinkFailureDoesNotAffectOutcome(t *testing.T) {
	durable := &recordingSink{}
	transient := &recordingSink{err: errors.New("redis down")}
	p := newTestProcessor(durable, transient, newStub("A", 100.0, 0.003))

	outcome, err := p.Process(context.Background(), intent("ord-transient-down"), 0)
	require.NoError(t, err)
	assert.True(t, outcome.OK)
	assert.Len(t, durable.events, 4)
}

func TestProcessBothSinksFailingStillConfirms(t *testing.T) {
	durable := &recordingSink{err: errors.New("database down")}
	transient := &recordingSink{err: errors.New("redis down")}
	p := newTestProcessor(durable, transient, newStub("A", 100.0, 0.003))

	outcome, err := p.Process(context.Background(), intent("ord-sinks-down"), 0)
	require.NoError(t, err)
	assert.True(t, outcome.OK)
}

func TestChooseQuote(t *testing.T) {
	tests := []struct {
		name   string
		quotes []domain.Quote
		want   domain.VenueID
	}{
		{
			name: "lower effective cost wins",
			quotes: []domain.Quote{
				{VenueID: "A", Price: 100.0, Fee: 0.003},
				{VenueID: "B", Price: 98.0, Fee: 0.002},
			},
			want: "B",
		},
		{
			name: "exact tie keeps first",
			quotes: []domain.Quote{
				{VenueID: "A", Price: 100.0, Fee: 0.002},
				{VenueID: "B", Price: 100.0, Fee: 0.002},
			},
			want: "A",
		},
		{
			name: "fee can outweigh raw price",
			quotes: []domain.Quote{
				{VenueID: "A", Price: 99.9, Fee: 0.01},
				{VenueID: "B", Price: 100.0, Fee: 0.0},
			},
			want: "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chooseQuote(tt.quotes)
			assert.Equal(t, tt.want, got.VenueID,
				fmt.Sprintf("effective costs: %v", effectiveCosts(tt.quotes)))
		})
	}
}

func effectiveCosts(quotes []domain.Quote) []float64 {
	out := make([]float64, len(quotes))
	for i, q := range quotes {
		out[i] = q.EffectiveCost()
	}
	return out
}
