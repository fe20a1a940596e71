package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// DeliveryLister reads the delivery log.
type DeliveryLister interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.DeliveryRecord, error)
}

// DeliveryHandler serves the delivery log.
type DeliveryHandler struct {
	store  DeliveryLister
	logger *slog.Logger
}

// NewDeliveryHandler creates a DeliveryHandler.
func NewDeliveryHandler(store DeliveryLister, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{store: store, logger: logger.With(slog.String("handler", "deliveries"))}
}

// ListDeliveries returns delivery records newest first.
// GET /api/deliveries?limit=&offset=&since=&until=
func (h *DeliveryHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list deliveries", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if recs == nil {
		recs = []domain.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
