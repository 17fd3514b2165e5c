package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/server/middleware"
	"github.com/alanyoungcy/swapd/internal/service"
)

// OrderService defines what the order handler requires from the service
// layer.
type OrderService interface {
	Submit(ctx context.Context, clientKey string, req service.SubmitRequest) (domain.Order, error)
	Get(ctx context.Context, id string) (domain.Order, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]domain.LifecycleEvent, error)
}

// OrderHandler serves the order HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// SubmitOrder accepts a new order for asynchronous processing and responds
// 202 with the pending aggregate.
// POST /api/orders
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	order, err := h.orders.Submit(r.Context(), middleware.ClientIP(r), req)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		if req.Validate() != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: submit order failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to submit order")
		return
	}

	writeJSON(w, http.StatusAccepted, order)
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

// ListOrders returns orders newest first.
// GET /api/orders?limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}

	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

// GetOrder returns one order's aggregate record, timeline included.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.orders.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get order failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// listEventsResponse wraps an order's lifecycle history.
type listEventsResponse struct {
	OrderID string                  `json:"order_id"`
	Events  []domain.LifecycleEvent `json:"events"`
}

// ListOrderEvents returns the durable lifecycle history of one order.
// GET /api/orders/{id}/events
func (h *OrderHandler) ListOrderEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	events, err := h.orders.ListEvents(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: list order events failed",
			slog.String("order_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list order events")
		return
	}

	if events == nil {
		events = []domain.LifecycleEvent{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{OrderID: id, Events: events})
}
