package domain

import "context"

// Importance mirrors the platform notification importance levels.
type Importance int

const (
	ImportanceDefault Importance = iota
	ImportanceLow
	ImportanceHigh
)

func (i Importance) String() string {
	switch i {
	case ImportanceHigh:
		return "high"
	case ImportanceLow:
		return "low"
	default:
		return "default"
	}
}

// ParseImportance is the inverse of Importance.String.
func ParseImportance(s string) Importance {
	switch s {
	case "high":
		return ImportanceHigh
	case "low":
		return ImportanceLow
	default:
		return ImportanceDefault
	}
}

// Channel is a notification channel as held by the registry.
type Channel struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
	Vibration   bool       `json:"vibration"`
	Lights      bool       `json:"lights"`
	LightColor  string     `json:"light_color,omitempty"` // e.g. "#FF0000"
}

// ChannelRegistry is the capability to look up and create notification
// channels. Implementations return (nil, nil) from GetChannel when the
// channel does not exist and ErrChannelsUnsupported when the target has no
// channel concept at all. CreateChannel must be create-if-absent.
type ChannelRegistry interface {
	GetChannel(ctx context.Context, id string) (*Channel, error)
	CreateChannel(ctx context.Context, ch Channel) error
}
