package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// ChannelLister lists registered notification channels.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]domain.Channel, error)
}

// ChannelHandler serves the channel registry.
type ChannelHandler struct {
	registry ChannelLister
	logger   *slog.Logger
}

// NewChannelHandler creates a ChannelHandler.
func NewChannelHandler(registry ChannelLister, logger *slog.Logger) *ChannelHandler {
	return &ChannelHandler{registry: registry, logger: logger.With(slog.String("handler", "channels"))}
}

// ListChannels returns every registered channel.
// GET /api/channels
func (h *ChannelHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	chs, err := h.registry.ListChannels(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list channels", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}
	if chs == nil {
		chs = []domain.Channel{}
	}
	writeJSON(w, http.StatusOK, chs)
}
