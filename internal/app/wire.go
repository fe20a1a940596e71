package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/mozoqr/waiterpush/internal/blob/s3"
	"github.com/mozoqr/waiterpush/internal/cache/memory"
	"github.com/mozoqr/waiterpush/internal/cache/redis"
	"github.com/mozoqr/waiterpush/internal/channels"
	"github.com/mozoqr/waiterpush/internal/config"
	"github.com/mozoqr/waiterpush/internal/delivery"
	"github.com/mozoqr/waiterpush/internal/domain"
	"github.com/mozoqr/waiterpush/internal/metrics"
	"github.com/mozoqr/waiterpush/internal/notify"
	"github.com/mozoqr/waiterpush/internal/render"
	"github.com/mozoqr/waiterpush/internal/server/handler"
	"github.com/mozoqr/waiterpush/internal/server/ws"
	"github.com/mozoqr/waiterpush/internal/store/postgres"
	natsq "github.com/mozoqr/waiterpush/internal/transport/nats"
)

// ChannelRegistry is a registry that can also list its channels.
type ChannelRegistry interface {
	domain.ChannelRegistry
	handler.ChannelLister
}

// Dependencies bundles every dependency that the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function. Adapters whose backend is disabled are nil.
type Dependencies struct {
	// Backends
	Redis    *redis.Client
	Postgres *postgres.Client
	S3       *s3blob.Client
	NATS     *natsq.Queue

	// Redis-backed or in-memory
	SignalBus   *redis.SignalBus
	RateLimiter domain.RateLimiter
	Deduper     domain.Deduper
	// MemDeduper is set when Deduper is the in-process fallback and needs
	// periodic cleanup.
	MemDeduper *memory.Deduper
	Tokens     domain.TokenStore
	Registry   ChannelRegistry

	// Postgres-backed
	Deliveries domain.DeliveryStore

	// Blob storage
	Archiver domain.Archiver

	// Surfaces
	Notifier *notify.Notifier
	Hub      *ws.Hub

	Metrics *metrics.Metrics
	Service *delivery.Service

	// Checks are the dependency probes served by /api/health.
	Checks []handler.Checker
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Metrics: metrics.New()}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
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
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Postgres = pgClient
		deps.Deliveries = postgres.NewDeliveryStore(pgClient.Pool())
		deps.Checks = append(deps.Checks, handler.Checker{Name: "postgres", Check: pgClient.Ping})
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		var (
			redisClient *redis.Client
			err         error
		)
		if cfg.Redis.URL != "" {
			redisClient, err = redis.NewFromURL(ctx, cfg.Redis.URL)
		} else {
			redisClient, err = redis.New(ctx, redis.ClientConfig{
				Addr:       cfg.Redis.Addr,
				Password:   cfg.Redis.Password,
				DB:         cfg.Redis.DB,
				PoolSize:   cfg.Redis.PoolSize,
				MaxRetries: cfg.Redis.MaxRetries,
				TLSEnabled: cfg.Redis.TLSEnabled,
			})
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Deduper = redis.NewDeduper(redisClient)
		deps.Tokens = redis.NewTokenStore(redisClient)
		deps.Checks = append(deps.Checks, handler.Checker{Name: "redis", Check: redisClient.Ping})
	} else {
		mem := memory.NewDeduper()
		deps.MemDeduper = mem
		deps.Deduper = mem
		deps.Tokens = memory.NewTokenStore()
	}

	// --- Channel registry ---
	switch cfg.Channels.Backend {
	case config.BackendPostgres:
		deps.Registry = postgres.NewChannelRegistry(deps.Postgres.Pool())
	case config.BackendRedis:
		deps.Registry = redis.NewChannelRegistry(deps.Redis)
	default:
		deps.Registry = channels.NewMemoryRegistry()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
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
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.S3 = s3Client
		deps.Checks = append(deps.Checks, handler.Checker{Name: "s3", Check: s3Client.Health})

		// Archiver: only when the delivery log lives in Postgres.
		if cfg.Archive.Enabled && deps.Postgres != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client, int64(cfg.S3.PartSizeMB)<<20),
				s3blob.NewReader(s3Client),
				postgres.NewDeliveryStore(deps.Postgres.Pool()),
				s3blob.ArchiverConfig{Prefix: cfg.Archive.Prefix, BatchSize: cfg.Archive.BatchSize},
				logger,
			)
		}
	}

	// --- NATS ---
	if cfg.ConsumesBus() && cfg.Transport.Kind == config.TransportNATS {
		q, err := natsq.Connect(ctx, natsq.Config{
			URL:      cfg.NATS.URL,
			Stream:   cfg.NATS.Stream,
			Subjects: cfg.NATS.Subjects,
			Durable:  cfg.NATS.Durable,
			Name:     cfg.NATS.Name,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: nats: %w", err)
		}
		closers = append(closers, func() { _ = q.Close() })
		deps.NATS = q
		deps.Checks = append(deps.Checks, handler.Checker{Name: "nats", Check: q.Ping})
	}

	// --- Surfaces ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Channels, logger)

	// The hub serves clients in server modes; in consume mode it only
	// publishes to the relay channel for server replicas.
	var relay domain.SignalBus
	if deps.SignalBus != nil && cfg.Server.RelayChannel != "" {
		relay = deps.SignalBus
	}
	if cfg.ServesHTTP() || relay != nil {
		deps.Hub = ws.NewHub(relay, ws.Config{
			BusChannel:     cfg.Server.RelayChannel,
			AllowedOrigins: cfg.Server.CORSOrigins,
			StartedAt:      time.Now().UTC(),
			MaxVisible:     cfg.Server.MaxVisible,
			OnClients:      deps.Metrics.SetWSClients,
		}, logger)
	}

	deps.Service = delivery.NewService(delivery.Deps{
		Registry: deps.Registry,
		Surface:  surfaces(deps.Hub, deps.Notifier),
		Tokens:   deps.Tokens,
		Recorder: recorder(deps.Deliveries),
		Metrics:  deps.Metrics,
	}, logger)

	return deps, cleanup, nil
}

// surfaces combines the configured notification surfaces. It returns nil
// when none is configured so the renderer reports the surface unavailable.
func surfaces(hub *ws.Hub, notifier *notify.Notifier) domain.NotificationSurface {
	var out render.Fanout
	if hub != nil {
		out = append(out, hub)
	}
	if notifier != nil && notifier.Len() > 0 {
		out = append(out, notifier)
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

// recorder avoids handing the service a typed-nil store.
func recorder(store domain.DeliveryStore) delivery.Recorder {
	if store == nil {
		return nil
	}
	return store
}
