package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozoqr/waiterpush/internal/config"
	"github.com/mozoqr/waiterpush/internal/feed"
	"github.com/mozoqr/waiterpush/internal/pipeline"
	"github.com/mozoqr/waiterpush/internal/server"
	"github.com/mozoqr/waiterpush/internal/server/handler"
)

const (
	shutdownTimeout      = 5 * time.Second
	dedupCleanupInterval = time.Minute
)

// ConsumeMode runs the bus transport feed and background maintenance, with
// no HTTP surface.
func (a *App) ConsumeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting consume mode",
		slog.String("transport", a.cfg.Transport.Kind),
	)

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startFeed(ctx, g, deps); err != nil {
		return fmt.Errorf("consume mode: %w", err)
	}
	a.startBackground(ctx, g, deps)
	return g.Wait()
}

// ServerMode runs the HTTP ingress, the WebSocket hub and background
// maintenance.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startBackground(ctx, g, deps)
	return g.Wait()
}

// FullMode runs everything: the bus feed (unless the transport is http), the
// HTTP ingress, the hub and background maintenance.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode",
		slog.String("transport", a.cfg.Transport.Kind),
	)

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.ConsumesBus() {
		if err := a.startFeed(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}
	a.startHTTPServer(ctx, g, deps)
	a.startBackground(ctx, g, deps)
	return g.Wait()
}

// startFeed adds the configured bus consumer to g. Every payload passes the
// deduplicator before reaching the delivery service.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	handle := feed.Deduplicated(deps.Service.HandleEnvelope, deps.Deduper, a.cfg.Transport.DedupTTL.Duration, a.logger)

	switch a.cfg.Transport.Kind {
	case config.TransportRedisPubSub:
		if deps.SignalBus == nil {
			return fmt.Errorf("transport %s: redis not wired", a.cfg.Transport.Kind)
		}
		f := feed.NewPubSubFeed(deps.SignalBus, a.cfg.Transport.Channel, handle, a.logger)
		g.Go(func() error {
			return f.Run(ctx)
		})

	case config.TransportRedisStream:
		if deps.SignalBus == nil {
			return fmt.Errorf("transport %s: redis not wired", a.cfg.Transport.Kind)
		}
		f := feed.NewStreamFeed(deps.SignalBus, feed.StreamConfig{
			Stream:   a.cfg.Transport.Stream,
			Group:    a.cfg.Transport.Group,
			Consumer: a.cfg.Transport.Consumer,
		}, handle, a.logger)
		g.Go(func() error {
			return f.Run(ctx)
		})

	case config.TransportNATS:
		if deps.NATS == nil {
			return fmt.Errorf("transport %s: nats not wired", a.cfg.Transport.Kind)
		}
		stop, err := deps.NATS.Subscribe(ctx, func(ctx context.Context, _ string, payload []byte) error {
			return handle(ctx, payload)
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			stop()
			return nil
		})

	default:
		return fmt.Errorf("transport %q has no bus feed", a.cfg.Transport.Kind)
	}
	return nil
}

// startHTTPServer adds the hub loop and the HTTP server to g. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: &handler.StatusHandler{
			Mode:      a.cfg.Mode,
			Transport: a.cfg.Transport.Kind,
			StartedAt: a.startedAt,
		},
		Push:     handler.NewPushHandler(deps.Service, a.logger),
		Channels: handler.NewChannelHandler(deps.Registry, a.logger),
		Metrics:  deps.Metrics.Handler(),
	}
	if deps.Hub != nil {
		handlers.Status.Clients = deps.Hub.ClientCount
		handlers.Notifications = handler.NewNotificationHandler(deps.Hub, a.logger)
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	if deps.Deliveries != nil {
		handlers.Deliveries = handler.NewDeliveryHandler(deps.Deliveries, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, deps.Hub, server.Options{
		Limiter:  deps.RateLimiter,
		Observer: deps.Metrics,
	}, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening", slog.Int("port", a.cfg.Server.Port))
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startBackground adds the archive scheduler and the in-memory dedup cleanup
// to g when they are wired.
func (a *App) startBackground(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver != nil {
		arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
		arch.OnArchived = deps.Metrics.AddArchived
		g.Go(func() error {
			if a.cfg.Archive.Cron != "" {
				return arch.RunCron(ctx, a.cfg.Archive.Cron)
			}
			return arch.RunEvery(ctx, a.cfg.Archive.Interval.Duration)
		})
	}

	if deps.MemDeduper != nil && a.cfg.Transport.DedupTTL.Duration > 0 {
		g.Go(func() error {
			return deps.MemDeduper.RunCleanup(ctx, dedupCleanupInterval)
		})
	}
}
