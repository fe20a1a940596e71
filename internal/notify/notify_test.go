package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mozoqr/waiterpush/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu   sync.Mutex
	name string
	err  error
	msgs []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func spec(channel string, urgent bool) domain.NotificationSpec {
	return domain.NotificationSpec{
		ChannelID:          channel,
		Title:              "Mesa 4 solicita mozo",
		Body:               "Nueva llamada de mesa",
		Tag:                "call-c1",
		RequireInteraction: urgent,
		Tap:                domain.TapAction{Extras: map[string]string{"table_number": "4"}},
	}
}

func TestNotifier_ChannelFilter(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"waiter_urgent"}, discardLogger())

	_ = n.Notify(context.Background(), 1, spec("waiter_normal", false))
	_ = n.Notify(context.Background(), 2, spec("waiter_urgent", true))

	if len(s.msgs) != 1 || s.msgs[0].ID != 2 || !s.msgs[0].Urgent {
		t.Fatalf("msgs = %+v", s.msgs)
	}
}

func TestNotifier_FailingSenderDoesNotBlockOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("down")}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), 1, spec("waiter_normal", false))
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err = %v", err)
	}
	if len(good.msgs) != 1 {
		t.Fatal("healthy sender should still receive the message")
	}
}

// stallingSender blocks until its context ends.
type stallingSender struct{}

func (stallingSender) Send(ctx context.Context, _ Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingSender) Name() string { return "stalled" }

func TestNotifier_SlowSenderDoesNotDelayOthers(t *testing.T) {
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{stallingSender{}, good}, nil, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := n.Notify(ctx, 1, spec("waiter_normal", false))

	if err == nil || !strings.Contains(err.Error(), "stalled") {
		t.Fatalf("err = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Notify took %s", elapsed)
	}
	good.mu.Lock()
	defer good.mu.Unlock()
	if len(good.msgs) != 1 {
		t.Fatal("healthy sender should receive the message")
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	err := s.Send(context.Background(), Message{Title: "Mesa 4", Body: "hola", Urgent: true, Extras: map[string]string{"table_number": "4"}})
	if err != nil {
		t.Fatal(err)
	}
	text, _ := got["text"].(string)
	if !strings.Contains(text, "[URGENTE] Mesa 4") || !strings.Contains(text, "Mesa: 4") {
		t.Errorf("text = %q", text)
	}
	if got["disable_notification"] != false {
		t.Errorf("urgent message should not be silent: %v", got["disable_notification"])
	}
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscordSender_Embed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "t", Urgent: true, ChannelID: "waiter_urgent"}); err != nil {
		t.Fatal(err)
	}
	if len(got.Embeds) != 1 || got.Embeds[0].Color != discordColorUrgent {
		t.Fatalf("embeds = %+v", got.Embeds)
	}
}

func TestWebhookSender(t *testing.T) {
	var auth string
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL, "secret").Send(context.Background(), Message{ID: 9, Tag: "call-9", Route: "/calls"})
	if err != nil {
		t.Fatal(err)
	}
	if auth != "Bearer secret" || got.ID != 9 || got.Tag != "call-9" || got.Route != "/calls" {
		t.Fatalf("auth = %q, payload = %+v", auth, got)
	}
}
