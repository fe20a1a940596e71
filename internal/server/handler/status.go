package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the process status for dashboards.
type StatusHandler struct {
	Mode      string
	Transport string
	StartedAt time.Time
	// Clients reports connected WebSocket clients; may be nil.
	Clients func() int
}

// GetStatus responds with the run mode, the inbound transport and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if h.Clients != nil {
		clients = h.Clients()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"transport":      h.Transport,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"ws_clients":     clients,
	})
}
