package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// GroupReader is the consumer-group side of the Redis signal bus.
type GroupReader interface {
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]domain.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
}

// StreamConfig identifies the stream and consumer.
type StreamConfig struct {
	Stream   string
	Group    string
	Consumer string
	Batch    int
	Block    time.Duration
	Backoff  time.Duration
}

// StreamFeed reads a Redis stream through a consumer group. Every entry is
// acknowledged after the handler returns, including rejected payloads, since
// redelivering a malformed message cannot succeed.
type StreamFeed struct {
	reader    GroupReader
	cfg       StreamConfig
	handle    Handler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewStreamFeed creates a StreamFeed.
func NewStreamFeed(reader GroupReader, cfg StreamConfig, handle Handler, logger *slog.Logger) *StreamFeed {
	if cfg.Batch <= 0 {
		cfg.Batch = 32
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	return &StreamFeed{
		reader: reader,
		cfg:    cfg,
		handle: handle,
		logger: logger.With(
			slog.String("component", "stream_feed"),
			slog.String("stream", cfg.Stream),
		),
		done: make(chan struct{}),
	}
}

// Run consumes until ctx is cancelled or Close is called. Read errors are
// retried after the configured backoff.
func (f *StreamFeed) Run(ctx context.Context) error {
	if err := f.reader.EnsureGroup(ctx, f.cfg.Stream, f.cfg.Group); err != nil {
		return err
	}
	f.logger.Info("stream feed started",
		slog.String("group", f.cfg.Group),
		slog.String("consumer", f.cfg.Consumer),
	)
	defer f.logger.Info("stream feed stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		msgs, err := f.reader.ReadGroup(ctx, f.cfg.Stream, f.cfg.Group, f.cfg.Consumer, f.cfg.Batch, f.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Warn("stream read failed, retrying", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			case <-time.After(f.cfg.Backoff):
			}
			continue
		}

		for _, m := range msgs {
			f.process(ctx, m)
		}
	}
}

func (f *StreamFeed) process(ctx context.Context, m domain.StreamMessage) {
	if len(m.Payload) == 0 {
		f.logger.Warn("stream entry without payload", slog.String("id", m.ID))
	} else if err := f.handle(ctx, m.Payload); err != nil {
		f.logger.Warn("stream feed rejected payload",
			slog.String("id", m.ID),
			slog.String("error", err.Error()),
		)
	}

	if err := f.reader.Ack(ctx, f.cfg.Stream, f.cfg.Group, m.ID); err != nil {
		f.logger.Warn("stream ack failed", slog.String("id", m.ID), slog.String("error", err.Error()))
	}
}

// Close stops the feed.
func (f *StreamFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
