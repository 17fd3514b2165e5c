package domain

import "time"

// EventStatus enumerates the per-attempt lifecycle event types emitted to
// both sinks. Within one attempt the success path emits routing, building,
// submitted, confirmed in that order; the failure path ends with failed.
type EventStatus string

const (
	EventRouting   EventStatus = "routing"
	EventBuilding  EventStatus = "building"
	EventSubmitted EventStatus = "submitted"
	EventConfirmed EventStatus = "confirmed"
	EventFailed    EventStatus = "failed"
)

// LifecycleEvent is one emitted event as recorded by the durable sink.
// Events are never mutated once emitted and always carry the attempt that
// produced them; retried attempts re-emit their own full sequence.
type LifecycleEvent struct {
	ID        int64       `json:"id"`
	OrderID   string      `json:"order_id"`
	Status    EventStatus `json:"status"`
	Meta      []byte      `json:"meta"`
	CreatedAt time.Time   `json:"created_at"`
}

// ChosenQuote is the winning quote embedded in the building payload.
type ChosenQuote struct {
	VenueID VenueID `json:"venue_id"`
	Price   float64 `json:"price"`
}

// RoutingPayload is emitted when an attempt starts quote retrieval.
type RoutingPayload struct {
	Status  EventStatus `json:"status"`
	Attempt int         `json:"attempt"`
}

// BuildingPayload is emitted once a venue has been chosen.
type BuildingPayload struct {
	Status  EventStatus `json:"status"`
	Attempt int         `json:"attempt"`
	Chosen  ChosenQuote `json:"chosen"`
}

// SubmittedPayload is emitted after a successful trade execution call.
type SubmittedPayload struct {
	Status  EventStatus `json:"status"`
	Attempt int         `json:"attempt"`
	TxHash  string      `json:"tx_hash"`
}

// ConfirmedPayload is the terminal success payload; its fields mirror the
// Outcome returned to the scheduler.
type ConfirmedPayload struct {
	Status        EventStatus `json:"status"`
	Attempts      int         `json:"attempts"`
	TxHash        string      `json:"tx_hash"`
	ExecutedPrice float64     `json:"executed_price"`
	VenueID       VenueID     `json:"venue_id"`
	OK            bool        `json:"ok"`
}

// FailedPayload is the terminal failure payload for one attempt.
type FailedPayload struct {
	Status  EventStatus `json:"status"`
	Attempt int         `json:"attempt"`
	Error   string      `json:"error"`
}
