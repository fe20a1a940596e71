package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Pipeline is the delivery entry point as seen by HTTP ingress.
type Pipeline interface {
	OnMessage(ctx context.Context, msg domain.InboundMessage) domain.Outcome
	OnTokenRefresh(ctx context.Context, token string)
	Token(ctx context.Context) (string, error)
}

// PushHandler accepts push messages and token refreshes over HTTP.
type PushHandler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// NewPushHandler creates a PushHandler.
func NewPushHandler(p Pipeline, logger *slog.Logger) *PushHandler {
	return &PushHandler{pipeline: p, logger: logger.With(slog.String("handler", "push"))}
}

// PostMessage runs one message through the pipeline.
// POST /api/push/messages
func (h *PushHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.InboundMessage
	if err := decodeJSON(w, r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message body")
		return
	}
	outcome := h.pipeline.OnMessage(r.Context(), msg)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"outcome":    outcome,
		"message_id": msg.MessageID,
	})
}

// PostToken stores a refreshed registration token. The write happens in the
// background.
// POST /api/push/token
func (h *PushHandler) PostToken(w http.ResponseWriter, r *http.Request) {
	var ev domain.TokenEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid token body")
		return
	}
	if strings.TrimSpace(ev.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	h.pipeline.OnTokenRefresh(r.Context(), ev.Token)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// GetToken returns the last stored registration token.
// GET /api/push/token
func (h *PushHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.pipeline.Token(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no token stored")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "read token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read token")
		return
	}
	writeJSON(w, http.StatusOK, domain.TokenEvent{Token: token})
}
