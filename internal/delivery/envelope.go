package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// DecodeEnvelope parses a bus payload. A payload without a kind is read as a
// bare InboundMessage.
func DecodeEnvelope(payload []byte) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("delivery: decode envelope: %w: %v", domain.ErrInvalidMessage, err)
	}

	switch env.Kind {
	case domain.EnvelopeMessage:
		if env.Message == nil {
			return env, fmt.Errorf("delivery: message envelope without message: %w", domain.ErrInvalidMessage)
		}
	case domain.EnvelopeToken:
		if env.Token == nil {
			return env, fmt.Errorf("delivery: token envelope without token: %w", domain.ErrInvalidMessage)
		}
	case "":
		var msg domain.InboundMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return env, fmt.Errorf("delivery: decode message: %w: %v", domain.ErrInvalidMessage, err)
		}
		env.Kind = domain.EnvelopeMessage
		env.Message = &msg
	default:
		return env, fmt.Errorf("delivery: unknown envelope kind %q: %w", env.Kind, domain.ErrInvalidMessage)
	}
	return env, nil
}

// HandleEnvelope decodes payload and routes it to OnMessage or
// OnTokenRefresh. Only decoding errors are returned.
func (s *Service) HandleEnvelope(ctx context.Context, payload []byte) error {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return err
	}
	switch env.Kind {
	case domain.EnvelopeToken:
		s.OnTokenRefresh(ctx, env.Token.Token)
	default:
		s.OnMessage(ctx, *env.Message)
	}
	return nil
}
