package domain

import "strings"

// Literal defaults shared with the mobile client. They must match exactly.
const (
	FallbackChannelID = "waiter_normal"
	UrgentChannelID   = "waiter_urgent"
	PrimaryChannelID  = "mozo_waiter"

	DefaultBody    = "Nueva llamada de mesa"
	TokenStoreKey  = "fcm_token"
	unknownTable   = "?"
	titleTemplateA = "Mesa "
	titleTemplateB = " solicita mozo"
)

// RecognizedCallTypes are the type values that make a message actionable on
// their own. Comparison is case-insensitive.
var RecognizedCallTypes = []string{"waiter_call", "new_call", "unified"}

// DefaultTitle renders "Mesa {table} solicita mozo", using "?" for an empty
// table label.
func DefaultTitle(table string) string {
	if table == "" {
		table = unknownTable
	}
	return titleTemplateA + table + titleTemplateB
}

// IsRecognizedCallType reports whether t is one of RecognizedCallTypes.
func IsRecognizedCallType(t string) bool {
	for _, r := range RecognizedCallTypes {
		if strings.EqualFold(t, r) {
			return true
		}
	}
	return false
}

// CallEvent is the normalized view of an inbound message.
type CallEvent struct {
	Type       string
	TableLabel string
	CallID     string
	ChannelID  string
	Title      string
	Body       string
	Urgency    string
	Route      string

	// Data is the raw data map, kept for forwarding to connected clients.
	Data map[string]string
}

// Actionable reports whether the event represents a real waiter call.
func (e CallEvent) Actionable() bool {
	return e.TableLabel != "" || e.CallID != "" || IsRecognizedCallType(e.Type)
}

// Urgent reports whether the sender flagged the call as high urgency.
func (e CallEvent) Urgent() bool {
	u := strings.ToLower(e.Urgency)
	return u == "high" || u == "urgent"
}

// Tag is the replacement tag used by surfaces that key by string instead of
// numeric id.
func (e CallEvent) Tag() string {
	if e.CallID != "" {
		return "call-" + e.CallID
	}
	return "mozo-notification"
}
