package domain

import "time"

// NotificationBlock is the structured notification part of a push message.
// Nil fields mean the sender did not set them.
type NotificationBlock struct {
	Title *string `json:"title,omitempty"`
	Body  *string `json:"body,omitempty"`
}

// InboundMessage is a push message as delivered by the transport. It is
// treated as immutable once received.
type InboundMessage struct {
	From         string             `json:"from,omitempty"`
	MessageID    string             `json:"message_id,omitempty"`
	CollapseKey  string             `json:"collapse_key,omitempty"`
	SentTime     int64              `json:"sent_time,omitempty"` // unix millis
	TTL          int                `json:"ttl,omitempty"`       // seconds
	Data         map[string]string  `json:"data,omitempty"`
	Notification *NotificationBlock `json:"notification,omitempty"`
}

// DataKeys returns the keys of the data map, for diagnostics.
func (m InboundMessage) DataKeys() []string {
	keys := make([]string, 0, len(m.Data))
	for k := range m.Data {
		keys = append(keys, k)
	}
	return keys
}

// Sent returns SentTime as a time.Time, or the zero time if unset.
func (m InboundMessage) Sent() time.Time {
	if m.SentTime <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(m.SentTime)
}

// TokenEvent is a registration token refresh delivered by the transport.
type TokenEvent struct {
	Token string `json:"token"`
}

// Envelope is the wire format used by the bus transports. Exactly one of
// Message and Token is expected to be set.
type Envelope struct {
	Kind    string          `json:"kind"` // "message" or "token"
	Message *InboundMessage `json:"message,omitempty"`
	Token   *TokenEvent     `json:"token,omitempty"`
}

const (
	EnvelopeMessage = "message"
	EnvelopeToken   = "token"
)
