package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swapd/internal/cache/redis"
	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/server"
	"github.com/alanyoungcy/swapd/internal/server/handler"
	"github.com/alanyoungcy/swapd/internal/server/ws"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// ServerMode runs the HTTP API, the websocket hub, and the scheduler. The job
// queue is in-process, so any mode that accepts orders must also run the
// scheduler that drains it.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startScheduler(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)

	return waitGroup(g)
}

// WorkerMode runs the scheduler and the event archiver with no HTTP surface.
// Pending orders left over from a previous run are requeued on startup.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startScheduler(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return waitGroup(g)
}

// FullMode runs everything: HTTP API, websocket hub, scheduler, and archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	a.startScheduler(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	a.startArchiver(ctx, g, deps)

	return waitGroup(g)
}

// startScheduler launches the dispatch loop and requeues any orders that were
// still pending when the previous process stopped.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Scheduler.Run(ctx)
	})
	g.Go(func() error {
		a.requeuePending(ctx, deps)
		return nil
	})
}

// startHTTPServer launches the websocket hub and the HTTP server, and wires a
// watcher that shuts the server down when the group context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.EventBus, redis.AllOrdersPattern(), a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(deps.healthPingers(), a.logger),
			Orders: handler.NewOrderHandler(deps.OrderService, a.logger),
		},
		hub,
		deps.Limiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startArchiver launches the periodic event archival loop when S3 is enabled.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		err := deps.Archiver.Run(ctx,
			a.cfg.S3.ArchiveInterval.Duration,
			a.cfg.S3.ArchiveCutoffAge.Duration,
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// pendingResumer is the slice of the scheduler the requeue path uses.
type pendingResumer interface {
	Resume(ctx context.Context, intent domain.OrderIntent, previousAttemptsMade int) error
}

// requeuePending walks the order store and resumes every order still in
// pending status. Delivery is at-least-once: an order that was mid-attempt
// during the previous shutdown simply runs again. Resuming carries the
// persisted retry count forward, so a restart never resets an order's
// attempt budget.
func (a *App) requeuePending(ctx context.Context, deps *Dependencies) {
	a.resumePending(ctx, deps.OrderStore, deps.Scheduler)
}

func (a *App) resumePending(ctx context.Context, orders domain.OrderStore, jobs pendingResumer) {
	const pageSize = 200

	requeued := 0
	for offset := 0; ; offset += pageSize {
		page, err := orders.List(ctx, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			a.logger.ErrorContext(ctx, "pending order scan failed",
				slog.String("error", err.Error()),
			)
			return
		}
		if len(page) == 0 {
			break
		}

		for _, o := range page {
			if o.Status != domain.OrderStatusPending {
				continue
			}
			if err := jobs.Resume(ctx, o.Intent(), o.RetryCount); err != nil {
				a.logger.ErrorContext(ctx, "requeue failed",
					slog.String("order_id", o.ID),
					slog.String("error", err.Error()),
				)
				return
			}
			requeued++
		}

		if len(page) < pageSize {
			break
		}
	}

	if requeued > 0 {
		a.logger.InfoContext(ctx, "requeued pending orders",
			slog.Int("count", requeued),
		)
	}
}

// waitGroup collapses the clean-shutdown case: context cancellation is the
// normal way this process stops.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
