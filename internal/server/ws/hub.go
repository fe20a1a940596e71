// Package ws shows notifications to connected staff clients over WebSocket.
// The hub keeps the set of visible notifications keyed by id: notifying an
// id that is already visible replaces it on every client.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mozoqr/waiterpush/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must be less than pongWait
	maxMessageSize = 4096
	sendBufferSize = 256

	// DefaultMaxVisible caps the visible set, like the notification shade
	// of a phone.
	DefaultMaxVisible = 50
)

// Frame types sent to clients.
const (
	FrameStatus       = "hub_status"
	FrameNotification = "notification"
	FrameCallEvent    = "call_event"
	FrameDismissed    = "dismissed"
)

// Frame is the JSON envelope of every server-to-client message. It is also
// what travels over the bus between replicas.
type Frame struct {
	Type     string                   `json:"type"`
	ID       int32                    `json:"id,omitempty"`
	Channel  string                   `json:"channel,omitempty"`
	Replaces bool                     `json:"replaces,omitempty"`
	Spec     *domain.NotificationSpec `json:"notification,omitempty"`
	Data     map[string]string        `json:"data,omitempty"`
	Payload  any                      `json:"payload,omitempty"`
}

// clientMsg is what a client may send: channel subscriptions and dismissals.
type clientMsg struct {
	Action   string   `json:"action"` // "subscribe", "unsubscribe", "dismiss"
	Channels []string `json:"channels"`
	ID       int32    `json:"id"`
}

// Config configures a Hub.
type Config struct {
	// BusChannel, when set together with a bus, relays frames between
	// replicas so clients on any instance see every notification.
	BusChannel     string
	AllowedOrigins []string
	StartedAt      time.Time
	// MaxVisible caps the visible notifications; the oldest is dismissed
	// when a new one would exceed it. Zero means DefaultMaxVisible.
	MaxVisible int
	// OnClients is called with the client count after every change.
	OnClients func(n int)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool
	mu   sync.RWMutex
}

type visibleEntry struct {
	spec domain.NotificationSpec
	seq  uint64
}

// Hub implements domain.NotificationSurface for WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Frame
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	cfg        Config
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	visible map[int32]visibleEntry
	seq     uint64
	running bool
	done    chan struct{}

	logger *slog.Logger
}

// NewHub creates a Hub. bus may be nil for a single instance.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	if cfg.MaxVisible <= 0 {
		cfg.MaxVisible = DefaultMaxVisible
	}
	h := &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		cfg:        cfg,
		visible:    make(map[int32]visibleEntry),
		logger:     logger.With(slog.String("component", "ws_hub")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// Notify shows spec under id, replacing any visible notification with the
// same id. When spec carries raw data a call_event frame follows so
// clients can reconcile their own call list. A hub that relays over the bus
// publishes even when not running, so a consume-only process can feed the
// hubs of server replicas.
func (h *Hub) Notify(ctx context.Context, id int32, spec domain.NotificationSpec) error {
	if !h.isRunning() && !h.relays() {
		return domain.ErrSurfaceUnavailable
	}
	s := spec
	if err := h.emit(ctx, Frame{Type: FrameNotification, ID: id, Channel: spec.ChannelID, Spec: &s}); err != nil {
		return err
	}
	if len(spec.Data) > 0 {
		return h.emit(ctx, Frame{Type: FrameCallEvent, ID: id, Channel: spec.ChannelID, Data: spec.Data})
	}
	return nil
}

// Dismiss removes the notification with id from every client.
func (h *Hub) Dismiss(ctx context.Context, id int32) error {
	return h.emit(ctx, Frame{Type: FrameDismissed, ID: id})
}

// Visible returns the currently visible notifications, oldest first.
func (h *Hub) Visible() []Frame {
	h.mu.RLock()
	ids := make([]int32, 0, len(h.visible))
	for id := range h.visible {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return h.visible[ids[i]].seq < h.visible[ids[j]].seq })
	out := make([]Frame, 0, len(ids))
	for _, id := range ids {
		s := h.visible[id].spec
		out = append(out, Frame{Type: FrameNotification, ID: id, Channel: s.ChannelID, Spec: &s})
	}
	h.mu.RUnlock()
	return out
}

func (h *Hub) relays() bool {
	return h.bus != nil && h.cfg.BusChannel != ""
}

// emit publishes f to the bus when relaying is configured, otherwise
// applies it locally.
func (h *Hub) emit(ctx context.Context, f Frame) error {
	if h.relays() {
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("ws: encode frame: %w", err)
		}
		return h.bus.Publish(ctx, h.cfg.BusChannel, data)
	}
	return h.apply(f)
}

// apply queues f for broadcast and updates the visible set. The set only
// changes when the frame was queued, so a dropped frame leaves it as it was.
func (h *Hub) apply(f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if f.Type == FrameNotification {
		_, f.Replaces = h.visible[f.ID]
	}
	select {
	case h.broadcast <- f:
	default:
		return fmt.Errorf("ws: broadcast queue full, frame %s dropped", f.Type)
	}

	switch f.Type {
	case FrameNotification:
		if f.Spec != nil {
			h.seq++
			h.visible[f.ID] = visibleEntry{spec: *f.Spec, seq: h.seq}
			h.evictLocked()
		}
	case FrameDismissed:
		delete(h.visible, f.ID)
	}
	return nil
}

// evictLocked drops the oldest notifications above the cap and tells
// clients to dismiss them. h.mu must be held.
func (h *Hub) evictLocked() {
	for len(h.visible) > h.cfg.MaxVisible {
		var (
			oldest int32
			minSeq uint64
			first  = true
		)
		for id, e := range h.visible {
			if first || e.seq < minSeq {
				oldest, minSeq, first = id, e.seq, false
			}
		}
		delete(h.visible, oldest)

		select {
		case h.broadcast <- Frame{Type: FrameDismissed, ID: oldest}:
		default:
			h.logger.Warn("ws: eviction frame dropped", slog.Int("notification_id", int(oldest)))
		}
	}
}

// stopped returns a channel closed when the current Run exits.
func (h *Hub) stopped() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done
}

func (h *Hub) isRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Run is the hub event loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if h.relays() {
		if err := h.relay(ctx); err != nil {
			return err
		}
	}

	h.mu.Lock()
	h.running = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.running = false
		close(done)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.clientsChanged(n)
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.clientsChanged(n)
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case f := <-h.broadcast:
			data, err := json.Marshal(f)
			if err != nil {
				h.logger.Error("ws: encode frame failed", slog.String("error", err.Error()))
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if f.Channel != "" && !c.isSubscribed(f.Channel) {
					continue
				}
				select {
				case c.send <- data:
				default:
					h.logger.Warn("ws: dropping frame for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay subscribes to the bus channel and applies frames from every replica.
func (h *Hub) relay(ctx context.Context) error {
	msgCh, err := h.bus.Subscribe(ctx, h.cfg.BusChannel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", h.cfg.BusChannel, err)
	}
	h.logger.Info("ws: relaying frames", slog.String("channel", h.cfg.BusChannel))

	go func() {
		for data := range msgCh {
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				h.logger.Warn("ws: bad relayed frame", slog.String("error", err.Error()))
				continue
			}
			if err := h.apply(f); err != nil {
				h.logger.Warn("ws: relay apply failed", slog.String("error", err.Error()))
			}
		}
	}()
	return nil
}

func (h *Hub) clientsChanged(n int) {
	if h.cfg.OnClients != nil {
		h.cfg.OnClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request and registers the client. The optional
// "channels" query parameter (comma separated) limits which notification
// channels the client receives.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !h.isRunning() {
		http.Error(w, `{"error":"hub not running"}`, http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if q := r.URL.Query().Get("channels"); q != "" {
		for _, ch := range strings.Split(q, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				c.subs[ch] = true
			}
		}
	} else {
		c.subs["*"] = true
	}

	select {
	case h.register <- c:
	case <-h.stopped():
		conn.Close()
		return
	}
	// Frames broadcast from here on queue in c.send until writePump starts,
	// so nothing between the snapshot and the pump is lost.
	if err := c.writeSnapshot(); err != nil {
		h.logger.Warn("ws: snapshot failed", slog.String("error", err.Error()))
		conn.Close()
	}

	go c.writePump()
	go c.readPump()
}

// readPump handles subscription changes and dismissals from the client.
func (c *client) readPump() {
	done := c.hub.stopped()
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}

		var msg clientMsg
		if json.Unmarshal(message, &msg) != nil {
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg clientMsg) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		delete(c.subs, "*")
		for _, ch := range msg.Channels {
			c.subs[ch] = true
		}
		c.mu.Unlock()
	case "unsubscribe":
		c.mu.Lock()
		for _, ch := range msg.Channels {
			delete(c.subs, ch)
		}
		c.mu.Unlock()
	case "dismiss":
		// Tapping a notification cancels it everywhere.
		if err := c.hub.Dismiss(context.Background(), msg.ID); err != nil {
			c.hub.logger.Warn("ws: dismiss failed", slog.String("error", err.Error()))
		}
	}
}

// writeSnapshot writes the hub status followed by every visible
// notification the client is subscribed to, so a reconnecting client
// catches up. It writes to the connection directly and must run before
// writePump.
func (c *client) writeSnapshot() error {
	uptime := int64(time.Since(c.hub.cfg.StartedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	frames := []Frame{{
		Type: FrameStatus,
		Payload: map[string]any{
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	}}
	for _, f := range c.hub.Visible() {
		if c.isSubscribed(f.Channel) {
			frames = append(frames, f)
		}
	}

	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return fmt.Errorf("ws: write snapshot: %w", err)
		}
	}
	return nil
}

// isSubscribed reports whether the client wants frames for channel. "*"
// subscribes to everything; a trailing "*" matches a prefix.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs["*"] || c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if strings.HasSuffix(sub, "*") && strings.HasPrefix(channel, strings.TrimSuffix(sub, "*")) {
			return true
		}
	}
	return false
}

// writePump writes queued frames as text messages and pings periodically.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ domain.NotificationSurface = (*Hub)(nil)
