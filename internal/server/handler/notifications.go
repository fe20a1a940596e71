package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mozoqr/waiterpush/internal/server/ws"
)

// Board is the set of notifications currently shown to staff.
type Board interface {
	Visible() []ws.Frame
	Dismiss(ctx context.Context, id int32) error
}

// NotificationHandler exposes the visible notifications.
type NotificationHandler struct {
	board  Board
	logger *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(b Board, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{board: b, logger: logger.With(slog.String("handler", "notifications"))}
}

// ListNotifications returns the visible notifications, oldest first.
// GET /api/notifications
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.board.Visible())
}

// DismissNotification removes a notification from every client.
// DELETE /api/notifications/{id}
func (h *NotificationHandler) DismissNotification(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.board.Dismiss(r.Context(), int32(id)); err != nil {
		h.logger.ErrorContext(r.Context(), "dismiss notification",
			slog.Int64("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "notification surface unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
