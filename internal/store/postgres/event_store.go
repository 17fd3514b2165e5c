package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// EventStore is the durable lifecycle event sink and its read side. Events
// are append-only rows; nothing ever updates or deletes them outside the
// archival path.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Emit appends one lifecycle event row. The payload is stored as JSONB.
func (s *EventStore) Emit(ctx context.Context, orderID string, status domain.EventStatus, payload any) error {
	meta, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("postgres: marshal event payload for order %s: %w", orderID, err)
	}

	const query = `
		INSERT INTO order_events (order_id, event_type, meta, created_at)
		VALUES ($1, $2, $3, NOW())`

	if _, err := s.pool.Exec(ctx, query, orderID, string(status), meta); err != nil {
		return fmt.Errorf("postgres: emit %s event for order %s: %w", status, orderID, err)
	}
	return nil
}

// ListByOrder returns all events for an order in emission order.
func (s *EventStore) ListByOrder(ctx context.Context, orderID string) ([]domain.LifecycleEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, event_type, meta, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for order %s: %w", orderID, err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events for order %s: %w", orderID, err)
	}
	return events, nil
}

// ListBefore returns events created strictly before the cutoff whose order
// has reached a terminal status. Used by the archiver; events of in-flight
// orders are never archived.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LifecycleEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.order_id, e.event_type, e.meta, e.created_at
		FROM order_events e
		JOIN orders o ON o.id = e.order_id
		WHERE e.created_at < $1 AND o.status IN ('confirmed', 'failed')
		ORDER BY e.id ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	events, err := scanEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan events before cutoff: %w", err)
	}
	return events, nil
}

func scanEventRows(rows pgx.Rows) ([]domain.LifecycleEvent, error) {
	var events []domain.LifecycleEvent
	for rows.Next() {
		var e domain.LifecycleEvent
		var eventType string
		if err := rows.Scan(&e.ID, &e.OrderID, &eventType, &e.Meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Status = domain.EventStatus(eventType)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
