// Package channels makes sure notification channels exist before a
// notification is dispatched on them.
package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mozoqr/waiterpush/internal/domain"
)

const callLightColor = "#FF0000"

// Definition names a channel to pre-create at startup.
type Definition struct {
	ID          string
	Name        string
	Description string
}

// DefaultDefinitions are the channels the mobile client creates at boot.
var DefaultDefinitions = []Definition{
	{ID: domain.FallbackChannelID, Name: "Llamadas Mesa", Description: "Llamadas de mesas (normal)"},
	{ID: domain.UrgentChannelID, Name: "Llamadas Urgentes", Description: "Llamadas urgentes / alta prioridad"},
	{ID: domain.PrimaryChannelID, Name: "Compatibilidad", Description: "Canal legado de notificaciones de mozo"},
}

// Ensurer creates channels on demand. It never modifies a channel that
// already exists and never returns an error: failures are logged and the
// caller proceeds with dispatch.
type Ensurer struct {
	registry domain.ChannelRegistry
	logger   *slog.Logger
}

// NewEnsurer creates an Ensurer over registry. A nil registry behaves like a
// platform without channels.
func NewEnsurer(registry domain.ChannelRegistry, logger *slog.Logger) *Ensurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ensurer{
		registry: registry,
		logger:   logger.With(slog.String("component", "channels")),
	}
}

// EnsureChannel creates the channel with high importance, vibration and a
// red light cue if it does not exist yet.
func (e *Ensurer) EnsureChannel(ctx context.Context, id, name, description string) {
	e.ensure(ctx, domain.Channel{
		ID:          id,
		Name:        name,
		Description: description,
		Importance:  domain.ImportanceHigh,
		Vibration:   true,
		Lights:      true,
		LightColor:  callLightColor,
	})
}

// EnsureDefaults pre-creates defs (DefaultDefinitions when nil). These are
// created without the light cue, matching the client bootstrap.
func (e *Ensurer) EnsureDefaults(ctx context.Context, defs []Definition) {
	if defs == nil {
		defs = DefaultDefinitions
	}
	for _, d := range defs {
		e.ensure(ctx, domain.Channel{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Importance:  domain.ImportanceHigh,
			Vibration:   true,
		})
	}
}

func (e *Ensurer) ensure(ctx context.Context, ch domain.Channel) {
	if e == nil || e.registry == nil || ch.ID == "" {
		return
	}

	if err := e.tryEnsure(ctx, ch); err != nil {
		if errors.Is(err, domain.ErrChannelsUnsupported) {
			return
		}
		e.logger.WarnContext(ctx, "ensure channel failed",
			slog.String("channel_id", ch.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Ensurer) tryEnsure(ctx context.Context, ch domain.Channel) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channels: registry panic: %v", r)
		}
	}()

	existing, err := e.registry.GetChannel(ctx, ch.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if existing != nil {
		return nil
	}

	if err := e.registry.CreateChannel(ctx, ch); err != nil {
		return err
	}
	e.logger.DebugContext(ctx, "channel created", slog.String("channel_id", ch.ID))
	return nil
}
