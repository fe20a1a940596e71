// Package render turns a classified call into a notification and hands it to
// the notification surface.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Literal fallbacks shown by the client when a field is missing.
const (
	SmallIcon     = "ic_dialog_info"
	FallbackTitle = "MozoApp"
	FallbackBody  = "Nueva notificación"
	MainSurface   = "main"
)

// Extra keys attached to the tap action.
const (
	ExtraCallID = "callId"
	ExtraTable  = "table_number"
	ExtraType   = "type"
)

// DispatchTimeout bounds a single surface dispatch.
const DispatchTimeout = 5 * time.Second

// Renderer builds notification specs and dispatches them. Dispatch failures
// are logged and never reach the caller.
type Renderer struct {
	// Timeout bounds each dispatch. Zero means DispatchTimeout.
	Timeout time.Duration

	surface domain.NotificationSurface
	logger  *slog.Logger
}

// NewRenderer creates a Renderer that dispatches to surface.
func NewRenderer(surface domain.NotificationSurface, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		Timeout: DispatchTimeout,
		surface: surface,
		logger:  logger.With(slog.String("component", "renderer")),
	}
}

// Build returns the notification spec for event on channelID.
func Build(event domain.CallEvent, channelID string) domain.NotificationSpec {
	if channelID == "" {
		channelID = domain.PrimaryChannelID
	}
	title := event.Title
	if title == "" {
		title = FallbackTitle
	}
	body := event.Body
	if body == "" {
		body = FallbackBody
	}
	route := event.Route
	if route == "" {
		route = "/"
	}

	return domain.NotificationSpec{
		ChannelID:          channelID,
		SmallIcon:          SmallIcon,
		Title:              title,
		Body:               body,
		Priority:           domain.PriorityHigh,
		AutoCancel:         true,
		DefaultAlerts:      true,
		RequireInteraction: event.Urgent(),
		Tag:                event.Tag(),
		Route:              route,
		Tap: domain.TapAction{
			Target:    MainSurface,
			ClearTop:  true,
			SingleTop: true,
			Extras: map[string]string{
				ExtraCallID: event.CallID,
				ExtraTable:  event.TableLabel,
				ExtraType:   event.Type,
			},
		},
		Data: event.Data,
	}
}

// Render builds the notification for event and shows it under id. Showing a
// second notification with the same id replaces the first.
func (r *Renderer) Render(ctx context.Context, event domain.CallEvent, id int32, channelID string) {
	spec := Build(event, channelID)

	if err := r.dispatch(ctx, id, spec); err != nil {
		r.logger.ErrorContext(ctx, "notification dispatch failed",
			slog.Int("notification_id", int(id)),
			slog.String("channel_id", spec.ChannelID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.InfoContext(ctx, "notification shown",
		slog.Int("notification_id", int(id)),
		slog.String("channel_id", spec.ChannelID),
		slog.String("title", spec.Title),
	)
}

func (r *Renderer) dispatch(ctx context.Context, id int32, spec domain.NotificationSpec) (err error) {
	if r == nil || r.surface == nil {
		return domain.ErrSurfaceUnavailable
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render: surface panic: %v", p)
		}
	}()
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DispatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.surface.Notify(ctx, id, spec)
}
