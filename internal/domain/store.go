package domain

import (
	"context"
	"time"
)

// TokenStore persists small key/value pairs with overwrite semantics.
type TokenStore interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
}

// Outcome is the terminal state of one inbound message.
type Outcome string

const (
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeRendered   Outcome = "rendered"
)

// DeliveryRecord is the diagnostic trail of one processed message.
type DeliveryRecord struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	CallID         string    `json:"call_id,omitempty"`
	TableLabel     string    `json:"table_number,omitempty"`
	Type           string    `json:"type,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	NotificationID int32     `json:"notification_id"`
	Title          string    `json:"title,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// DeliveryStore persists delivery records.
type DeliveryStore interface {
	Record(ctx context.Context, rec DeliveryRecord) error
	List(ctx context.Context, opts ListOpts) ([]DeliveryRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]DeliveryRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
