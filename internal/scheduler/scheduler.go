// Package scheduler implements the retrying job engine that drives order
// attempts: bounded concurrency, exponential backoff, an attempt ceiling,
// and permanent-failure marking when attempts are exhausted. Delivery is
// at-least-once; the processor is designed to tolerate redelivery, so the
// scheduler never needs to deduplicate.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/swapd/internal/domain"
)

// Processor is the per-attempt state machine the scheduler drives.
type Processor interface {
	Process(ctx context.Context, intent domain.OrderIntent, previousAttemptsMade int) (domain.Outcome, error)
}

// Notifier receives terminal-order notifications. Implemented by
// notify.Notifier; nil-able via the scheduler's optional wiring.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config holds the retry and concurrency policy.
type Config struct {
	// MaxAttempts is the attempt ceiling per order (default 3).
	MaxAttempts int
	// BaseDelay is the first retry delay; each subsequent retry doubles it.
	BaseDelay time.Duration
	// Concurrency bounds the number of attempts executing simultaneously
	// across all orders (default 10).
	Concurrency int
	// LockTTL bounds how long a per-order execution lock is held. Zero
	// disables locking (single-process deployments).
	LockTTL time.Duration
	// QueueSize is the buffered job queue capacity.
	QueueSize int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}

// job is one pending delivery: the intent plus the zero-based count of
// attempts already made. The backoff state travels with the job so retry
// delays grow across redeliveries.
type job struct {
	intent           domain.OrderIntent
	previousAttempts int
	backoff          *backoff.ExponentialBackOff
}

// Scheduler owns the job queue and worker pool. Orders enter through
// Enqueue; Run dispatches attempts to the processor under the concurrency
// bound and reschedules failed attempts with exponential backoff until the
// ceiling is reached, at which point the order is marked permanently failed.
type Scheduler struct {
	cfg      Config
	proc     Processor
	orders   domain.OrderStore
	locks    domain.LockManager
	notifier Notifier
	logger   *slog.Logger

	jobs chan job
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
}

// New creates a Scheduler. orders is required; locks and notifier are
// optional and skipped when nil.
func New(cfg Config, proc Processor, orders domain.OrderStore, logger *slog.Logger) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:    cfg,
		proc:   proc,
		orders: orders,
		logger: logger.With(slog.String("component", "scheduler")),
		jobs:   make(chan job, cfg.QueueSize),
		sem:    semaphore.NewWeighted(int64(cfg.Concurrency)),
	}
}

// WithLockManager enables the per-order execution lock. With it, attempts
// for the same order are never concurrent even across worker processes.
func (s *Scheduler) WithLockManager(locks domain.LockManager) *Scheduler {
	s.locks = locks
	return s
}

// WithNotifier enables terminal-order notifications.
func (s *Scheduler) WithNotifier(n Notifier) *Scheduler {
	s.notifier = n
	return s
}

// Enqueue schedules the first attempt for an intent.
func (s *Scheduler) Enqueue(ctx context.Context, intent domain.OrderIntent) error {
	return s.push(ctx, job{intent: intent})
}

// Resume schedules the next attempt for an intent that already has attempts
// recorded against it, as after a process restart. The attempt ceiling keeps
// counting from previousAttemptsMade, so a restart never grants an order a
// fresh attempt budget.
func (s *Scheduler) Resume(ctx context.Context, intent domain.OrderIntent, previousAttemptsMade int) error {
	if previousAttemptsMade < 0 {
		previousAttemptsMade = 0
	}
	return s.push(ctx, job{intent: intent, previousAttempts: previousAttemptsMade})
}

func (s *Scheduler) push(ctx context.Context, j job) error {
	select {
	case s.jobs <- j:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: enqueue %s: %w", j.intent.OrderID, ctx.Err())
	}
}

// Run is the dispatch loop. It blocks until the context is cancelled, then
// waits for in-flight attempts to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started",
		slog.Int("max_attempts", s.cfg.MaxAttempts),
		slog.Duration("base_delay", s.cfg.BaseDelay),
		slog.Int("concurrency", s.cfg.Concurrency),
	)
	defer s.logger.Info("scheduler stopped")

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()

		case j := <-s.jobs:
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.wg.Wait()
				return ctx.Err()
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.sem.Release(1)
				s.attempt(ctx, j)
			}()
		}
	}
}

// attempt executes one delivery and decides what happens next: done,
// rescheduled, or permanently failed.
func (s *Scheduler) attempt(ctx context.Context, j job) {
	attempt := j.previousAttempts + 1
	log := s.logger.With(
		slog.String("order_id", j.intent.OrderID),
		slog.Int("attempt", attempt),
	)

	if s.locks != nil && s.cfg.LockTTL > 0 {
		unlock, err := s.locks.Acquire(ctx, "order:"+j.intent.OrderID, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				// Another worker holds this order; redeliver after the base
				// delay without consuming an attempt.
				log.WarnContext(ctx, "order locked elsewhere, redelivering")
				s.reschedule(ctx, j, s.cfg.BaseDelay)
				return
			}
			log.ErrorContext(ctx, "lock acquisition failed, redelivering",
				slog.String("error", err.Error()),
			)
			s.reschedule(ctx, j, s.cfg.BaseDelay)
			return
		}
		defer unlock()
	}

	outcome, err := s.proc.Process(ctx, j.intent, j.previousAttempts)
	if err == nil {
		s.recordResult(ctx, j.intent.OrderID, domain.OrderStatusConfirmed, attempt, "", outcome.TxHash)
		s.notify(ctx, "order_confirmed", "Order filled",
			fmt.Sprintf("order %s filled on venue %s at %.6f (attempt %d)",
				j.intent.OrderID, outcome.VenueID, outcome.ExecutedPrice, attempt))
		return
	}

	if errors.Is(err, domain.ErrMissingOrderID) {
		// Validation failures are terminal: the input never changes, so a
		// retry can only fail the same way.
		log.ErrorContext(ctx, "rejecting invalid job",
			slog.String("error", err.Error()),
		)
		return
	}

	if attempt >= s.cfg.MaxAttempts {
		log.ErrorContext(ctx, "attempts exhausted, marking order failed",
			slog.String("error", err.Error()),
		)
		permErr := fmt.Errorf("%w: %v", domain.ErrAttemptsExhausted, err)
		s.recordResult(ctx, j.intent.OrderID, domain.OrderStatusFailed, attempt, permErr.Error(), "")
		s.notify(ctx, "order_failed", "Order failed permanently",
			fmt.Sprintf("order %s failed after %d attempts: %v", j.intent.OrderID, attempt, err))
		return
	}

	// Record the failed attempt on the aggregate and redeliver. The order
	// stays pending between attempts; only exhaustion makes failure final.
	s.recordResult(ctx, j.intent.OrderID, domain.OrderStatusPending, attempt, err.Error(), "")

	j.previousAttempts = attempt
	delay := s.nextDelay(&j)
	log.WarnContext(ctx, "attempt failed, rescheduling",
		slog.String("error", err.Error()),
		slog.Duration("delay", delay),
	)
	s.reschedule(ctx, j, delay)
}

// nextDelay advances the job's exponential backoff and returns the delay
// before its next delivery.
func (s *Scheduler) nextDelay(j *job) time.Duration {
	if j.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.BaseDelay
		b.Multiplier = 2
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()
		j.backoff = b
	}
	return j.backoff.NextBackOff()
}

// reschedule redelivers the job after delay. The wait runs in its own
// goroutine so the dispatch loop is never blocked by backoff timers.
func (s *Scheduler) reschedule(ctx context.Context, j job, delay time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			_ = s.push(ctx, j)
		}
	}()
}

// recordResult updates the aggregate order record after a terminal attempt.
// Store failures are logged but do not affect scheduling: the durable event
// rows remain the source of truth for what happened.
func (s *Scheduler) recordResult(ctx context.Context, orderID string, status domain.OrderStatus, attempt int, lastError, txHash string) {
	if s.orders == nil {
		return
	}
	if err := s.orders.UpdateResult(ctx, orderID, status, attempt, lastError, txHash); err != nil {
		s.logger.ErrorContext(ctx, "order record update failed",
			slog.String("order_id", orderID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.Enqueuer = (*Scheduler)(nil)
