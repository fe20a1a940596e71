package feed

import (
	"context"
	"log/slog"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// PubSubFeed subscribes to a Redis Pub/Sub channel (or pattern) and hands
// every payload to the handler. Messages published while the feed is down
// are lost; use StreamFeed when that matters.
type PubSubFeed struct {
	bus     domain.SignalBus
	channel string
	handle  Handler
	logger  *slog.Logger
}

// NewPubSubFeed creates a PubSubFeed.
func NewPubSubFeed(bus domain.SignalBus, channel string, handle Handler, logger *slog.Logger) *PubSubFeed {
	return &PubSubFeed{
		bus:     bus,
		channel: channel,
		handle:  handle,
		logger:  logger.With(slog.String("component", "pubsub_feed")),
	}
}

// Run consumes until ctx is cancelled or the subscription closes.
func (f *PubSubFeed) Run(ctx context.Context) error {
	ch, err := f.bus.Subscribe(ctx, f.channel)
	if err != nil {
		return err
	}
	f.logger.Info("pubsub feed started", slog.String("channel", f.channel))
	defer f.logger.Info("pubsub feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return nil
			}
			if err := f.handle(ctx, data); err != nil {
				f.logger.Warn("pubsub feed rejected payload",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(data)),
				)
			}
		}
	}
}
