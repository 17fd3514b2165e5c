package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/swapd/internal/blob/s3"
	"github.com/alanyoungcy/swapd/internal/cache/redis"
	"github.com/alanyoungcy/swapd/internal/config"
	"github.com/alanyoungcy/swapd/internal/domain"
	"github.com/alanyoungcy/swapd/internal/notify"
	"github.com/alanyoungcy/swapd/internal/processor"
	"github.com/alanyoungcy/swapd/internal/scheduler"
	"github.com/alanyoungcy/swapd/internal/server/handler"
	"github.com/alanyoungcy/swapd/internal/service"
	"github.com/alanyoungcy/swapd/internal/sink"
	"github.com/alanyoungcy/swapd/internal/store/postgres"
	"github.com/alanyoungcy/swapd/internal/venue"
)

// Dependencies holds every wired component, grouped roughly by layer. Modes
// pick what they need from here; unused fields cost nothing.
type Dependencies struct {
	// Infrastructure clients.
	PG    *postgres.Client
	Redis *redis.Client

	// Stores and caches.
	OrderStore *postgres.OrderStore
	EventStore *postgres.EventStore
	EventBus   *redis.EventBus
	Limiter    *redis.RateLimiter
	Locks      *redis.LockManager

	// Processing pipeline.
	Router    *venue.Router
	Sinks     *sink.Fanout
	Processor *processor.Processor
	Scheduler *scheduler.Scheduler

	// Optional components, nil when disabled.
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier

	// Ingress.
	OrderService *service.OrderService
}

// Wire constructs all dependencies from cfg. It returns a cleanup function
// that closes the infrastructure clients; the caller runs it once on
// shutdown. On error, everything built so far is already cleaned up.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// ── PostgreSQL ──
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: connect postgres: %w", err)
	}
	closers = append(closers, pg.Close)
	deps.PG = pg

	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: run migrations: %w", err)
		}
		logger.InfoContext(ctx, "migrations applied")
	}

	deps.OrderStore = postgres.NewOrderStore(pg.Pool())
	deps.EventStore = postgres.NewEventStore(pg.Pool())

	// ── Redis ──
	rdb, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("app: connect redis: %w", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })
	deps.Redis = rdb

	deps.EventBus = redis.NewEventBus(rdb)
	deps.Limiter = redis.NewRateLimiter(rdb)
	deps.Locks = redis.NewLockManager(rdb)

	// ── S3 archival (optional) ──
	if cfg.S3.Enabled {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("app: create s3 client: %w", err)
		}
		closers = append(closers, func() { _ = s3c.Close() })
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3c), deps.EventStore, logger)
	}

	// ── Notifications ──
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// ── Venues ──
	venues := make([]domain.Venue, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		venues = append(venues, venue.NewMock(venue.MockConfig{
			ID:            domain.VenueID(vc.ID),
			BasePrice:     vc.BasePrice,
			Fee:           vc.Fee,
			Jitter:        vc.Jitter,
			ExecLatency:   vc.ExecLatency.Duration,
			QuoteFailRate: vc.QuoteFailRate,
			ExecFailRate:  vc.ExecFailRate,
		}))
	}
	deps.Router = venue.NewRouter(venues...)

	// ── Processing pipeline ──
	deps.Sinks = sink.NewFanout(deps.EventStore, deps.EventBus, logger)
	deps.Processor = processor.New(deps.Router, deps.Sinks, logger)

	sched := scheduler.New(scheduler.Config{
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		BaseDelay:   cfg.Scheduler.BaseDelay.Duration,
		Concurrency: cfg.Scheduler.Concurrency,
		LockTTL:     cfg.Scheduler.LockTTL.Duration,
		QueueSize:   cfg.Scheduler.QueueSize,
	}, deps.Processor, deps.OrderStore, logger)
	sched.WithLockManager(deps.Locks)
	if deps.Notifier != nil {
		sched.WithNotifier(deps.Notifier)
	}
	deps.Scheduler = sched

	// ── Ingress ──
	deps.OrderService = service.NewOrderService(
		deps.OrderStore,
		deps.EventStore,
		deps.Scheduler,
		deps.Limiter,
		logger,
	)

	return deps, cleanup, nil
}

// healthPingers assembles the dependency probes for the health endpoint.
func (d *Dependencies) healthPingers() map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"postgres": d.PG,
		"redis":    d.Redis,
	}
}
