package domain

import (
	"context"
	"time"
)

// Venue is one liquidity source. Implementations may be simulated (the mock
// venue) or real; both operations can fail with network-style errors that
// the processor treats as execution-path failures.
type Venue interface {
	ID() VenueID
	GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (Quote, error)
	ExecuteTrade(ctx context.Context, intent OrderIntent) (ExecutionResult, error)
}

// EventSink accepts one lifecycle event. The durable sink persists it; the
// transient sink broadcasts it to live subscribers. A sink failure must never
// influence the attempt's progression; callers wrap emission accordingly.
type EventSink interface {
	Emit(ctx context.Context, orderID string, status EventStatus, payload any) error
}

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// OrderStore persists the aggregate order records.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, opts ListOpts) ([]Order, error)
	// UpdateResult records the outcome of one attempt on the aggregate:
	// status, retry count, last error (empty on success), tx hash (empty on
	// failure), and an appended timeline entry.
	UpdateResult(ctx context.Context, id string, status OrderStatus, attempt int, lastError, txHash string) error
}

// EventStore is the durable sink plus its read side.
type EventStore interface {
	EventSink
	ListByOrder(ctx context.Context, orderID string) ([]LifecycleEvent, error)
}

// Enqueuer hands an order intent to the job scheduler for asynchronous
// processing. The scheduler owns retries and backoff from that point on.
type Enqueuer interface {
	Enqueue(ctx context.Context, intent OrderIntent) error
}

// SignalBus provides pub/sub messaging for the transient event path.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting for the ingress API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The scheduler takes a per-order
// lock so attempts for the same order are never concurrent, even across
// worker processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
