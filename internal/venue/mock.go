package venue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// MockConfig parameterises one simulated venue.
type MockConfig struct {
	ID        domain.VenueID
	BasePrice float64
	Fee       float64 // fraction in [0, 1)
	// Jitter is the maximum relative price deviation; each quote is priced
	// as BasePrice * (1 + u) with u uniform in [-Jitter, +Jitter].
	Jitter float64
	// ExecLatency simulates trade execution time before a result is returned.
	ExecLatency time.Duration
	// QuoteFailRate and ExecFailRate inject random failures in [0, 1].
	QuoteFailRate float64
	ExecFailRate  float64
}

// Mock is a simulated liquidity venue. It generates jittered quotes around a
// base price, simulates execution latency, and can inject failures for chaos
// and retry testing.
type Mock struct {
	cfg MockConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a simulated venue from cfg, seeded from the current time.
func NewMock(cfg MockConfig) *Mock {
	seed := uint64(time.Now().UnixNano())
	return &Mock{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// ID returns the venue identifier.
func (m *Mock) ID() domain.VenueID {
	return m.cfg.ID
}

// GetQuote returns a quote priced at BasePrice * (1 + jitter) with the
// venue's fixed fee.
func (m *Mock) GetQuote(ctx context.Context, tokenIn, tokenOut string, amountIn float64) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}
	if m.roll(m.cfg.QuoteFailRate) {
		return domain.Quote{}, fmt.Errorf("mock venue %s: quote %s/%s unavailable", m.cfg.ID, tokenIn, tokenOut)
	}

	jitter := 0.0
	if m.cfg.Jitter > 0 {
		jitter = (m.rand()*2 - 1) * m.cfg.Jitter
	}

	return domain.Quote{
		VenueID: m.cfg.ID,
		Price:   m.cfg.BasePrice * (1 + jitter),
		Fee:     m.cfg.Fee,
	}, nil
}

// ExecuteTrade simulates execution latency and returns a synthetic result
// with a fresh transaction hash.
func (m *Mock) ExecuteTrade(ctx context.Context, intent domain.OrderIntent) (domain.ExecutionResult, error) {
	if m.cfg.ExecLatency > 0 {
		timer := time.NewTimer(m.cfg.ExecLatency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.ExecutionResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if m.roll(m.cfg.ExecFailRate) {
		return domain.ExecutionResult{}, fmt.Errorf("mock venue %s: execution rejected for order %s", m.cfg.ID, intent.OrderID)
	}

	jitter := 0.0
	if m.cfg.Jitter > 0 {
		jitter = (m.rand()*2 - 1) * m.cfg.Jitter
	}

	return domain.ExecutionResult{
		TxHash:        "0x" + uuid.New().String(),
		ExecutedPrice: m.cfg.BasePrice * (1 + jitter),
		VenueID:       m.cfg.ID,
	}, nil
}

func (m *Mock) rand() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *Mock) roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	return m.rand() < rate
}

// Compile-time interface check.
var _ domain.Venue = (*Mock)(nil)
