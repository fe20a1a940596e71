// Package nats carries push payloads over NATS JetStream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Handler processes one payload received on subject.
type Handler func(ctx context.Context, subject string, payload []byte) error

// Config describes the connection, stream and durable consumer.
type Config struct {
	URL      string
	Stream   string
	Subjects []string
	Durable  string
	Name     string // connection name shown in NATS monitoring
}

// Queue publishes and consumes push payloads through a JetStream stream.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	cfg    Config
	logger *slog.Logger
}

// Connect dials NATS and ensures the stream exists.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Queue, error) {
	if cfg.Stream == "" || len(cfg.Subjects) == 0 {
		return nil, errors.New("nats: stream and subjects are required")
	}
	logger = logger.With(slog.String("component", "nats"))

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream init: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: cfg.Subjects,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: stream create %s: %w", cfg.Stream, err)
	}

	logger.Info("nats connected", slog.String("url", cfg.URL), slog.String("stream", cfg.Stream))
	return &Queue{nc: nc, js: js, cfg: cfg, logger: logger}, nil
}

// Publish sends payload to subject.
func (q *Queue) Publish(ctx context.Context, subject string, payload []byte) error {
	if _, err := q.js.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("nats: publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches the durable consumer to the stream and calls handler
// for every message. Invalid payloads are terminated so they are not
// redelivered; other handler errors are negatively acknowledged. The
// returned function stops consumption.
func (q *Queue) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, q.cfg.Stream, jetstream.ConsumerConfig{
		Durable:        q.cfg.Durable,
		FilterSubjects: q.cfg.Subjects,
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("nats: consumer create: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		q.dispatch(ctx, handler, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("nats: consume: %w", err)
	}
	return cc.Stop, nil
}

// Message is the subset of jetstream.Msg the dispatcher needs.
type Message interface {
	Subject() string
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

func (q *Queue) dispatch(ctx context.Context, handler Handler, msg Message) {
	err := handler(ctx, msg.Subject(), msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			q.logger.Warn("nats ack failed", slog.String("error", ackErr.Error()))
		}
	case errors.Is(err, domain.ErrInvalidMessage):
		q.logger.Warn("nats payload rejected",
			slog.String("subject", msg.Subject()),
			slog.String("error", err.Error()),
		)
		if termErr := msg.Term(); termErr != nil {
			q.logger.Warn("nats term failed", slog.String("error", termErr.Error()))
		}
	default:
		q.logger.Error("nats handler failed",
			slog.String("subject", msg.Subject()),
			slog.String("error", err.Error()),
		)
		if nakErr := msg.Nak(); nakErr != nil {
			q.logger.Warn("nats nak failed", slog.String("error", nakErr.Error()))
		}
	}
}

// IsConnected reports whether the connection is up.
func (q *Queue) IsConnected() bool {
	return q.nc != nil && q.nc.Status() == nats.CONNECTED
}

// Ping checks the connection, for health reporting.
func (q *Queue) Ping(context.Context) error {
	if !q.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Close drains and closes the connection.
func (q *Queue) Close() error {
	if err := q.nc.Drain(); err != nil {
		q.nc.Close()
		return fmt.Errorf("nats: drain: %w", err)
	}
	return nil
}
