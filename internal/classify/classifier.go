// Package classify turns raw push payloads into normalized call events and
// decides whether they represent a waiter call.
package classify

import "github.com/mozoqr/waiterpush/internal/domain"

const (
	defaultUrgency = "normal"
	defaultRoute   = "/"
)

// Classify extracts a CallEvent from msg. It has no side effects; callers
// check CallEvent.Actionable to decide whether to render.
func Classify(msg domain.InboundMessage) domain.CallEvent {
	data := msg.Data

	ev := domain.CallEvent{
		Type:       Lookup(data, "", typeKeys...),
		TableLabel: Lookup(data, "", tableKeys...),
		CallID:     Lookup(data, "", callIDKeys...),
		ChannelID:  Lookup(data, domain.FallbackChannelID, channelKeys...),
		Urgency:    Lookup(data, defaultUrgency, urgencyKeys...),
		Route:      Lookup(data, defaultRoute, routeKeys...),
		Data:       data,
	}

	// Structured notification text wins over data fields; title and body
	// fall back independently.
	var n domain.NotificationBlock
	if msg.Notification != nil {
		n = *msg.Notification
	}
	if n.Title != nil {
		ev.Title = *n.Title
	} else {
		ev.Title = Lookup(data, domain.DefaultTitle(ev.TableLabel), titleKeys...)
	}
	if n.Body != nil {
		ev.Body = *n.Body
	} else {
		ev.Body = Lookup(data, domain.DefaultBody, bodyKeys...)
	}

	return ev
}
