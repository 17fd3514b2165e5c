package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/service"
)

// stubOrderService provides canned responses per method.
type stubOrderService struct {
	submitOrder domain.Order
	submitErr   error
	getOrder    domain.Order
	getErr      error
	listOrders  []domain.Order
	listErr     error
	events      []domain.LifecycleEvent
	eventsErr   error
	lastOpts    domain.ListOpts
}

func (s *stubOrderService) Submit(_ context.Context, _ string, req service.SubmitRequest) (domain.Order, error) {
	if s.submitErr != nil {
		return domain.Order{}, s.submitErr
	}
	return s.submitOrder, nil
}

func (s *stubOrderService) Get(_ context.Context, id string) (domain.Order, error) {
	if s.getErr != nil {
		return domain.Order{}, s.getErr
	}
	return s.getOrder, nil
}

func (s *stubOrderService) List(_ context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	s.lastOpts = opts
	return s.listOrders, s.listErr
}

func (s *stubOrderService) ListEvents(_ context.Context, _ string) ([]domain.LifecycleEvent, error) {
	return s.events, s.eventsErr
}

func newMux(svc OrderService) *http.ServeMux {
	h := NewOrderHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", h.SubmitOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders/{id}/events", h.ListOrderEvents)
	return mux
}

func TestSubmitOrderAccepted(t *testing.T) {
	svc := &stubOrderService{
		submitOrder: domain.Order{ID: "ord-1", Status: domain.OrderStatusPending},
	}
	mux := newMux(svc)

	body := `{"token_in":"USDC","token_out":"WETH","amount_in":250}`
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ord-1", got.ID)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestSubmitOrderBadJSON(t *testing.T) {
	mux := newMux(&stubOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderValidationError(t *testing.T) {
	svc := &stubOrderService{
		submitErr: service.SubmitRequest{}.Validate(),
	}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"amount_in":0}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitOrderRateLimited(t *testing.T) {
	svc := &stubOrderService{submitErr: domain.ErrRateLimited}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/orders",
		strings.NewReader(`{"token_in":"USDC","token_out":"WETH","amount_in":1}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{getErr: domain.ErrNotFound}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderFound(t *testing.T) {
	svc := &stubOrderService{
		getOrder: domain.Order{ID: "ord-1", Status: domain.OrderStatusConfirmed, TxHash: "0xabc"},
	}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "0xabc", got.TxHash)
}

func TestListOrdersPagination(t *testing.T) {
	svc := &stubOrderService{}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?limit=5&offset=10", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ListOpts{Limit: 5, Offset: 10}, svc.lastOpts)

	// A nil result still serialises as an empty array.
	assert.Contains(t, rec.Body.String(), `"orders":[]`)
}

func TestListOrdersCapsLimit(t *testing.T) {
	svc := &stubOrderService{}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders?limit=9999", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, 500, svc.lastOpts.Limit)
}

func TestListOrderEvents(t *testing.T) {
	svc := &stubOrderService{
		events: []domain.LifecycleEvent{
			{ID: 1, OrderID: "ord-1", Status: domain.EventRouting},
			{ID: 2, OrderID: "ord-1", Status: domain.EventFailed},
		},
	}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ord-1/events", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		OrderID string                  `json:"order_id"`
		Events  []domain.LifecycleEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "ord-1", got.OrderID)
	require.Len(t, got.Events, 2)
	assert.Equal(t, domain.EventFailed, got.Events[1].Status)
}

func TestListOrderEventsNotFound(t *testing.T) {
	svc := &stubOrderService{eventsErr: domain.ErrNotFound}
	mux := newMux(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/missing/events", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
