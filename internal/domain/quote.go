package domain

// VenueID identifies a liquidity venue. Venue ordering is significant: the
// router keeps venues in registration order, and that order breaks effective
// cost ties during selection.
type VenueID string

const (
	VenueA VenueID = "A"
	VenueB VenueID = "B"
)

// Quote is one venue's offer for a pair and amount within a single attempt.
// Quotes are never persisted standalone; they exist only to pick a venue.
type Quote struct {
	VenueID VenueID `json:"venue_id"`
	Price   float64 `json:"price"`
	Fee     float64 `json:"fee"` // fraction in [0, 1)
}

// EffectiveCost is the venue-selection basis: price * (1 + fee).
func (q Quote) EffectiveCost() float64 {
	return q.Price * (1 + q.Fee)
}

// ExecutionResult is produced by a successful trade execution call.
type ExecutionResult struct {
	TxHash        string  `json:"tx_hash"`
	ExecutedPrice float64 `json:"executed_price"`
	VenueID       VenueID `json:"venue_id"`
}
