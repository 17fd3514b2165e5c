// Package domain defines the core types and port interfaces for the swap
// execution service. It has no dependencies on concrete infrastructure.
package domain

import "time"

// OrderIntent is the immutable input to one processing attempt: which pair to
// trade and how much. OrderID is mandatory; an intent without it is rejected
// before any side effect occurs.
type OrderIntent struct {
	OrderID  string  `json:"order_id"`
	TokenIn  string  `json:"token_in"`
	TokenOut string  `json:"token_out"`
	AmountIn float64 `json:"amount_in"`
}

// OrderStatus tracks the aggregate order lifecycle as persisted in the
// durable store. It mirrors the per-attempt event statuses plus the initial
// pending state set at ingress.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusRouting   OrderStatus = "routing"
	OrderStatusBuilding  OrderStatus = "building"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusFailed    OrderStatus = "failed"
)

// Order is the aggregate record for a submitted order: current status, retry
// bookkeeping, and the append-only status timeline maintained by the store.
type Order struct {
	ID         string          `json:"id"`
	TokenIn    string          `json:"token_in"`
	TokenOut   string          `json:"token_out"`
	AmountIn   float64         `json:"amount_in"`
	Status     OrderStatus     `json:"status"`
	RetryCount int             `json:"retry_count"`
	LastError  string          `json:"last_error,omitempty"`
	TxHash     string          `json:"tx_hash,omitempty"`
	Timeline   []StatusChange  `json:"timeline,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StatusChange is one entry in an order's append-only status timeline.
type StatusChange struct {
	Status  OrderStatus `json:"status"`
	Attempt int         `json:"attempt"`
	At      time.Time   `json:"at"`
}

// Intent returns the processing intent embedded in the aggregate record.
func (o Order) Intent() OrderIntent {
	return OrderIntent{
		OrderID:  o.ID,
		TokenIn:  o.TokenIn,
		TokenOut: o.TokenOut,
		AmountIn: o.AmountIn,
	}
}

// Outcome is the terminal success record returned by the processor for a
// filled order. Failed attempts return an error instead; the two are mutually
// exclusive per attempt.
type Outcome struct {
	Status        string  `json:"status"` // always "filled"
	TxHash        string  `json:"tx_hash"`
	ExecutedPrice float64 `json:"executed_price"`
	VenueID       VenueID `json:"venue_id"`
	Attempts      int     `json:"attempts"`
	OK            bool    `json:"ok"`
}
