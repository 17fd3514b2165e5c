// Package sink wraps the durable and transient event sinks behind a single
// fan-out emitter with per-sink failure isolation.
package sink

import (
	"context"
	"log/slog"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// Fanout emits every lifecycle event to both the durable recorder and the
// transient broadcaster. The two writes are independent and best-effort:
// a failure in either sink is logged and swallowed, never aborting the other
// sink's attempt and never surfacing to the processor. The sinks can
// therefore diverge (one succeeds, one fails); durable history is the source
// of truth.
type Fanout struct {
	durable   domain.EventSink
	transient domain.EventSink
	logger    *slog.Logger
}

// NewFanout creates a Fanout over the two sinks.
func NewFanout(durable, transient domain.EventSink, logger *slog.Logger) *Fanout {
	return &Fanout{
		durable:   durable,
		transient: transient,
		logger:    logger.With(slog.String("component", "sink")),
	}
}

// Emit delivers one event to both sinks. It never returns an error; attempt
// is carried for log context only (the payload already contains it).
func (f *Fanout) Emit(ctx context.Context, orderID string, attempt int, status domain.EventStatus, payload any) {
	if err := f.durable.Emit(ctx, orderID, status, payload); err != nil {
		f.logger.ErrorContext(ctx, "durable sink emit failed",
			slog.String("order_id", orderID),
			slog.Int("attempt", attempt),
			slog.String("status", string(status)),
			slog.String("sink", "durable"),
			slog.String("error", err.Error()),
		)
	}
	if err := f.transient.Emit(ctx, orderID, status, payload); err != nil {
		f.logger.ErrorContext(ctx, "transient sink emit failed",
			slog.String("order_id", orderID),
			slog.Int("attempt", attempt),
			slog.String("status", string(status)),
			slog.String("sink", "transient"),
			slog.String("error", err.Error()),
		)
	}
}
