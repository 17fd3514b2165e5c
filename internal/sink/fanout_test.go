package sink

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/swapd/internal/domain"
)

type captureSink struct {
	mu       sync.Mutex
	statuses []domain.EventStatus
	err      error
}

func (s *captureSink) Emit(_ context.Context, _ string, status domain.EventStatus, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func newFanoutUnderTest(durable, transient domain.EventSink) *Fanout {
	return NewFanout(durable, transient, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFanoutEmitsToBothSinks(t *testing.T) {
	durable := &captureSink{}
	transient := &captureSink{}
	f := newFanoutUnderTest(durable, transient)

	f.Emit(context.Background(), "ord-1", 1, domain.EventRouting, domain.RoutingPayload{Status: domain.EventRouting, Attempt: 1})

	assert.Equal(t, []domain.EventStatus{domain.EventRouting}, durable.statuses)
	assert.Equal(t, []domain.EventStatus{domain.EventRouting}, transient.statuses)
}

func TestFanoutDurableFailureStillReachesTransient(t *testing.T) {
	durable := &captureSink{err: errors.New("database down")}
	transient := &captureSink{}
	f := newFanoutUnderTest(durable, transient)

	f.Emit(context.Background(), "ord-1", 1, domain.EventConfirmed, domain.ConfirmedPayload{})

	assert.Empty(t, durable.statuses)
	assert.Equal(t, []domain.EventStatus{domain.EventConfirmed}, transient.statuses)
}

func TestFanoutTransientFailureStillReachesDurable(t *testing.T) {
	durable := &captureSink{}
	transient := &captureSink{err: errors.New("redis down")}
	f := newFanoutUnderTest(durable, transient)

	f.Emit(context.Background(), "ord-1", 1, domain.EventConfirmed, domain.ConfirmedPayload{})

	assert.Equal(t, []domain.EventStatus{domain.EventConfirmed}, durable.statuses)
	assert.Empty(t, transient.statuses)
}

func TestFanoutBothFailingIsSilent(t *testing.T) {
	durable := &captureSink{err: errors.New("database down")}
	transient := &captureSink{err: errors.New("redis down")}
	f := newFanoutUnderTest(durable, transient)

	// Emit has no error return; the call simply must not panic or block.
	f.Emit(context.Background(), "ord-1", 1, domain.EventFailed, domain.FailedPayload{})
}
