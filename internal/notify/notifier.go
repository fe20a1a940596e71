// Package notify forwards waiter calls to out-of-band channels (Telegram,
// Discord, generic webhooks) so staff without the app still see them.
// Messages can be filtered by notification channel so, for example, only
// urgent calls reach a chat group.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mozoqr/waiterpush/internal/domain"
)

// Message is what a Sender delivers.
type Message struct {
	ID        int32
	ChannelID string
	Title     string
	Body      string
	Tag       string
	Route     string
	Urgent    bool
	Extras    map[string]string
}

// Sender is one delivery channel.
type Sender interface {
	// Send delivers msg.
	Send(ctx context.Context, msg Message) error
	// Name returns a short identifier such as "telegram".
	Name() string
}

// Notifier fans a message out to its senders. When channels is non-empty,
// only messages on those notification channels are forwarded.
type Notifier struct {
	senders  []Sender
	channels map[string]bool
	logger   *slog.Logger
}

// NewNotifier creates a Notifier over senders. An empty channels list
// forwards everything.
func NewNotifier(senders []Sender, channels []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(channels))
	for _, c := range channels {
		if c = strings.TrimSpace(c); c != "" {
			allowed[c] = true
		}
	}
	return &Notifier{
		senders:  senders,
		channels: allowed,
		logger:   logger.With(slog.String("component", "notifier")),
	}
}

// Len returns the number of senders.
func (n *Notifier) Len() int {
	return len(n.senders)
}

// Notify implements domain.NotificationSurface.
func (n *Notifier) Notify(ctx context.Context, id int32, spec domain.NotificationSpec) error {
	if len(n.channels) > 0 && !n.channels[spec.ChannelID] {
		n.logger.DebugContext(ctx, "channel filtered out", slog.String("channel_id", spec.ChannelID))
		return nil
	}
	return n.dispatch(ctx, Message{
		ID:        id,
		ChannelID: spec.ChannelID,
		Title:     spec.Title,
		Body:      spec.Body,
		Tag:       spec.Tag,
		Route:     spec.Route,
		Urgent:    spec.RequireInteraction,
		Extras:    spec.Tap.Extras,
	})
}

// dispatch sends to every sender concurrently; one failing or slow sender
// does not hold up the others. Failures are combined into the returned
// error.
func (n *Notifier) dispatch(ctx context.Context, msg Message) error {
	if len(n.senders) == 0 {
		return nil
	}

	errs := make([]string, len(n.senders))
	var wg sync.WaitGroup
	for i, s := range n.senders {
		wg.Add(1)
		go func(i int, s Sender) {
			defer wg.Done()
			if err := s.Send(ctx, msg); err != nil {
				n.logger.ErrorContext(ctx, "sender failed",
					slog.String("sender", s.Name()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Sprintf("%s: %v", s.Name(), err)
				return
			}
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("tag", msg.Tag),
			)
		}(i, s)
	}
	wg.Wait()

	var failed []string
	for _, e := range errs {
		if e != "" {
			failed = append(failed, e)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// headline renders the title with an urgency marker.
func headline(msg Message) string {
	if msg.Urgent {
		return "[URGENTE] " + msg.Title
	}
	return msg.Title
}

var _ domain.NotificationSurface = (*Notifier)(nil)
