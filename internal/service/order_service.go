// Package service implements the ingress-facing order operations: accept an
// order, hand it to the scheduler, and serve reads over the durable stores.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// submitRateLimit caps order submissions per client key.
const (
	submitRateLimit  = 10
	submitRateWindow = time.Second
)

// SubmitRequest is the ingress payload for a new order. OrderID is optional;
// when empty a UUID is assigned so the job the scheduler sees always carries
// an id.
type SubmitRequest struct {
	OrderID  string  `json:"order_id"`
	TokenIn  string  `json:"token_in"`
	TokenOut string  `json:"token_out"`
	AmountIn float64 `json:"amount_in"`
}

// Validate checks the request fields that the processor cannot default.
func (r SubmitRequest) Validate() error {
	if r.TokenIn == "" || r.TokenOut == "" {
		return fmt.Errorf("order_service: token_in and token_out are required")
	}
	if r.TokenIn == r.TokenOut {
		return fmt.Errorf("order_service: token_in and token_out must differ")
	}
	if r.AmountIn <= 0 {
		return fmt.Errorf("order_service: amount_in must be positive")
	}
	return nil
}

// OrderService accepts orders and serves order and event reads.
type OrderService struct {
	orders   domain.OrderStore
	events   domain.EventStore
	enqueuer domain.Enqueuer
	limiter  domain.RateLimiter
	logger   *slog.Logger
}

// NewOrderService creates an OrderService. limiter may be nil, in which case
// submission is unthrottled.
func NewOrderService(
	orders domain.OrderStore,
	events domain.EventStore,
	enqueuer domain.Enqueuer,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:   orders,
		events:   events,
		enqueuer: enqueuer,
		limiter:  limiter,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// Submit validates the request, persists the pending order, and enqueues its
// first processing attempt. Processing is asynchronous; the returned order is
// the pending aggregate the caller can poll or watch over the websocket.
func (s *OrderService) Submit(ctx context.Context, clientKey string, req SubmitRequest) (domain.Order, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "submit:"+clientKey, submitRateLimit, submitRateWindow)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Order{}, domain.ErrRateLimited
		}
	}

	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	id := req.OrderID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:       id,
		TokenIn:  req.TokenIn,
		TokenOut: req.TokenOut,
		AmountIn: req.AmountIn,
		Status:   domain.OrderStatusPending,
		Timeline: []domain.StatusChange{
			{Status: domain.OrderStatusPending, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create order %s: %w", id, err)
	}

	if err := s.enqueuer.Enqueue(ctx, order.Intent()); err != nil {
		// The pending row stays behind for the operator to inspect; the order
		// was accepted but never scheduled.
		return domain.Order{}, fmt.Errorf("order_service: enqueue order %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "order accepted",
		slog.String("order_id", id),
		slog.String("pair", req.TokenIn+"/"+req.TokenOut),
		slog.Float64("amount_in", req.AmountIn),
	)

	return order, nil
}

// Get retrieves a single order by id.
func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: get order %q: %w", id, err)
	}
	return order, nil
}

// List returns orders newest first with pagination.
func (s *OrderService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	orders, err := s.orders.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("order_service: list orders: %w", err)
	}
	return orders, nil
}

// ListEvents returns the durable lifecycle history of one order in emission
// order. The order must exist even if it has no events yet.
func (s *OrderService) ListEvents(ctx context.Context, orderID string) ([]domain.LifecycleEvent, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, fmt.Errorf("order_service: get order %q: %w", orderID, err)
	}
	events, err := s.events.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order_service: list events for %q: %w", orderID, err)
	}
	return events, nil
}
