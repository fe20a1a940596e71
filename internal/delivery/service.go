// Package delivery is the entry point invoked by the push transport for each
// inbound message and each registration token refresh.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mozoqr/waiterpush/internal/channels"
	"github.com/mozoqr/waiterpush/internal/classify"
	"github.com/mozoqr/waiterpush/internal/domain"
	"github.com/mozoqr/waiterpush/internal/identity"
	"github.com/mozoqr/waiterpush/internal/render"
)

// Name and description used for channels created on demand.
const (
	DynamicChannelName        = "Llamadas"
	DynamicChannelDescription = "Canal dinámico auto-creado"
)

const (
	tokenWriteTimeout  = 10 * time.Second
	recordWriteTimeout = 5 * time.Second
)

// Recorder receives one record per processed message.
type Recorder interface {
	Record(ctx context.Context, rec domain.DeliveryRecord) error
}

// Metrics observes pipeline outcomes.
type Metrics interface {
	ObserveOutcome(outcome domain.Outcome, channelID string)
	ObserveTokenRefresh(err error)
}

// Deps are the collaborators of a Service. Registry, Recorder and Metrics are
// optional.
type Deps struct {
	Registry domain.ChannelRegistry
	Surface  domain.NotificationSurface
	Tokens   domain.TokenStore
	Recorder Recorder
	Metrics  Metrics
	Clock    identity.Clock
	Now      func() time.Time
}

// Service runs the classify, ensure, resolve, render pipeline. It holds no
// per-message state and is safe for concurrent use.
type Service struct {
	ensurer  *channels.Ensurer
	resolver *identity.Resolver
	renderer *render.Renderer
	tokens   domain.TokenStore
	recorder Recorder
	metrics  Metrics
	now      func() time.Time
	logger   *slog.Logger

	pending sync.WaitGroup
}

// NewService wires a Service from deps.
func NewService(deps Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		ensurer:  channels.NewEnsurer(deps.Registry, logger),
		resolver: identity.NewResolver(deps.Clock),
		renderer: render.NewRenderer(deps.Surface, logger),
		tokens:   deps.Tokens,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		now:      now,
		logger:   logger.With(slog.String("component", "delivery")),
	}
}

// OnMessage processes one inbound message. It never returns an error and
// never panics; the returned outcome is informational.
func (s *Service) OnMessage(ctx context.Context, msg domain.InboundMessage) (outcome domain.Outcome) {
	outcome = domain.OutcomeSuppressed
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "message handling panicked",
				slog.String("message_id", msg.MessageID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	keys := msg.DataKeys()
	sort.Strings(keys)
	s.logger.InfoContext(ctx, "push message received",
		slog.String("from", msg.From),
		slog.String("message_id", msg.MessageID),
		slog.String("collapse_key", msg.CollapseKey),
		slog.Int64("sent_time", msg.SentTime),
		slog.Int("ttl", msg.TTL),
		slog.Any("data_keys", keys),
		slog.Bool("has_notification", msg.Notification != nil),
	)

	event := classify.Classify(msg)
	if !event.Actionable() {
		s.logger.InfoContext(ctx, "message is not a waiter call, suppressed",
			slog.String("message_id", msg.MessageID),
			slog.String("type", event.Type),
		)
		s.finish(ctx, msg, event, 0, domain.OutcomeSuppressed)
		return domain.OutcomeSuppressed
	}

	s.ensurer.EnsureChannel(ctx, event.ChannelID, DynamicChannelName, DynamicChannelDescription)
	id := s.resolver.ResolveID(event.CallID)
	s.renderer.Render(ctx, event, id, event.ChannelID)

	s.finish(ctx, msg, event, id, domain.OutcomeRendered)
	return domain.OutcomeRendered
}

func (s *Service) finish(ctx context.Context, msg domain.InboundMessage, event domain.CallEvent, id int32, outcome domain.Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(outcome, event.ChannelID)
	}
	if s.recorder == nil {
		return
	}
	rec := domain.DeliveryRecord{
		ID:             uuid.NewString(),
		MessageID:      msg.MessageID,
		Outcome:        outcome,
		CallID:         event.CallID,
		TableLabel:     event.TableLabel,
		Type:           event.Type,
		ChannelID:      event.ChannelID,
		NotificationID: id,
		Title:          event.Title,
		CreatedAt:      s.now().UTC(),
	}
	s.detach(ctx, "delivery recorder", func(bg context.Context) {
		wctx, cancel := context.WithTimeout(bg, recordWriteTimeout)
		defer cancel()
		if err := s.recorder.Record(wctx, rec); err != nil {
			s.logger.WarnContext(wctx, "record delivery failed",
				slog.String("message_id", rec.MessageID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// detach runs fn in a goroutine tracked by Wait. fn gets a context that
// keeps ctx's values but is never cancelled with it.
func (s *Service) detach(ctx context.Context, what string, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error(what+" panicked", slog.String("panic", fmt.Sprint(r)))
			}
		}()
		fn(bg)
	}()
}

// OnTokenRefresh persists token under domain.TokenStoreKey in the background.
// It returns immediately; the write is attempted once and failures are only
// logged.
func (s *Service) OnTokenRefresh(ctx context.Context, token string) {
	s.logger.InfoContext(ctx, "registration token refreshed", slog.Int("token_len", len(token)))
	if s.tokens == nil {
		s.logger.WarnContext(ctx, "no token store configured, token dropped")
		return
	}

	s.detach(ctx, "token store", func(bg context.Context) {
		wctx, cancel := context.WithTimeout(bg, tokenWriteTimeout)
		defer cancel()

		err := s.tokens.Put(wctx, domain.TokenStoreKey, token)
		if s.metrics != nil {
			s.metrics.ObserveTokenRefresh(err)
		}
		if err != nil {
			s.logger.WarnContext(wctx, "persist token failed", slog.String("error", err.Error()))
			return
		}
		s.logger.DebugContext(wctx, "token persisted")
	})
}

// Token returns the last persisted registration token.
func (s *Service) Token(ctx context.Context) (string, error) {
	if s.tokens == nil {
		return "", domain.ErrNotFound
	}
	return s.tokens.Get(ctx, domain.TokenStoreKey)
}

// EnsureDefaults pre-creates the default channels.
func (s *Service) EnsureDefaults(ctx context.Context) {
	s.ensurer.EnsureDefaults(ctx, nil)
}

// Wait blocks until background token and delivery record writes have
// finished.
func (s *Service) Wait() {
	s.pending.Wait()
}
