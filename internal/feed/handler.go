// Package feed consumes push payloads from the Redis transports and hands
// them to the delivery service.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Handler processes one raw transport payload.
type Handler func(ctx context.Context, payload []byte) error

// messageIDProbe extracts the message id from either envelope shape.
type messageIDProbe struct {
	MessageID string `json:"message_id"`
	Message   *struct {
		MessageID string `json:"message_id"`
	} `json:"message"`
}

// MessageID returns the transport message id carried in payload, or "".
func MessageID(payload []byte) string {
	var p messageIDProbe
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	if p.Message != nil && p.Message.MessageID != "" {
		return p.Message.MessageID
	}
	return p.MessageID
}

// Deduplicated wraps next so that a payload whose message id was already
// seen within ttl is dropped. Payloads without an id always pass, as do all
// payloads when the deduper fails.
func Deduplicated(next Handler, d domain.Deduper, ttl time.Duration, logger *slog.Logger) Handler {
	if d == nil || ttl <= 0 {
		return next
	}
	logger = logger.With(slog.String("component", "dedup"))

	return func(ctx context.Context, payload []byte) error {
		id := MessageID(payload)
		if id == "" {
			return next(ctx, payload)
		}
		first, err := d.FirstSeen(ctx, id, ttl)
		if err != nil {
			logger.WarnContext(ctx, "dedup check failed, processing anyway",
				slog.String("message_id", id),
				slog.String("error", err.Error()),
			)
			return next(ctx, payload)
		}
		if !first {
			logger.DebugContext(ctx, "duplicate message dropped", slog.String("message_id", id))
			return nil
		}
		return next(ctx, payload)
	}
}
