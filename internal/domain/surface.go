package domain

import "context"

// Priority mirrors the platform notification priority.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

// TapAction describes what happens when the user taps the notification: the
// main application surface is reopened with Extras as navigation metadata.
type TapAction struct {
	Target    string            `json:"target"`
	ClearTop  bool              `json:"clear_top"`
	SingleTop bool              `json:"single_top"`
	Extras    map[string]string `json:"extras"`
}

// NotificationSpec is a fully rendered notification ready for dispatch.
type NotificationSpec struct {
	ChannelID          string    `json:"channel_id"`
	SmallIcon          string    `json:"small_icon"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	Priority           Priority  `json:"priority"`
	AutoCancel         bool      `json:"auto_cancel"`
	DefaultAlerts      bool      `json:"default_alerts"`
	RequireInteraction bool      `json:"require_interaction"`
	Tag                string    `json:"tag"`
	Route              string    `json:"route"`
	Tap                TapAction `json:"tap"`

	// Data is the raw push data, forwarded to clients that reconcile calls.
	Data map[string]string `json:"data,omitempty"`
}

// NotificationSurface shows notifications. Notifying twice with the same id
// replaces the earlier notification instead of stacking a second one.
type NotificationSurface interface {
	Notify(ctx context.Context, id int32, spec NotificationSpec) error
}
