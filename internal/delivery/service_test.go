package delivery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mozoqr/waiterpush/internal/channels"
	"github.com/mozoqr/waiterpush/internal/domain"
	"github.com/mozoqr/waiterpush/internal/identity"
	"github.com/mozoqr/waiterpush/internal/render"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// checkingSurface records the channel state observed at dispatch time.
type checkingSurface struct {
	*render.MemorySurface
	registry      domain.ChannelRegistry
	channelAtCall map[string]bool
	mu            sync.Mutex
}

func (c *checkingSurface) Notify(ctx context.Context, id int32, spec domain.NotificationSpec) error {
	ch, _ := c.registry.GetChannel(ctx, spec.ChannelID)
	c.mu.Lock()
	c.channelAtCall[spec.ChannelID] = ch != nil
	c.mu.Unlock()
	return c.MemorySurface.Notify(ctx, id, spec)
}

type memTokens struct {
	mu   sync.Mutex
	vals map[string]string
	err  error
	done chan struct{}
}

func newMemTokens() *memTokens {
	return &memTokens{vals: map[string]string{}, done: make(chan struct{}, 8)}
}

func (m *memTokens) Put(_ context.Context, key, value string) error {
	defer func() { m.done <- struct{}{} }()
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	return nil
}

func (m *memTokens) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

type memRecorder struct {
	mu   sync.Mutex
	recs []domain.DeliveryRecord
	err  error
}

func (m *memRecorder) Record(_ context.Context, rec domain.DeliveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return m.err
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[domain.Outcome]int
	tokens   int
}

func (c *countingMetrics) ObserveOutcome(o domain.Outcome, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[domain.Outcome]int{}
	}
	c.outcomes[o]++
}

func (c *countingMetrics) ObserveTokenRefresh(error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens++
}

type fixture struct {
	svc      *Service
	registry *channels.MemoryRegistry
	surface  *checkingSurface
	tokens   *memTokens
	recorder *memRecorder
	metrics  *countingMetrics
}

func newFixture() *fixture {
	reg := channels.NewMemoryRegistry()
	surface := &checkingSurface{
		MemorySurface: render.NewMemorySurface(),
		registry:      reg,
		channelAtCall: map[string]bool{},
	}
	f := &fixture{
		registry: reg,
		surface:  surface,
		tokens:   newMemTokens(),
		recorder: &memRecorder{},
		metrics:  &countingMetrics{},
	}
	f.svc = NewService(Deps{
		Registry: reg,
		Surface:  surface,
		Tokens:   f.tokens,
		Recorder: f.recorder,
		Metrics:  f.metrics,
		Clock:    identity.ClockFunc(func() time.Time { return time.UnixMilli(1_700_000_000_123) }),
	}, discardLogger())
	return f
}

func TestOnMessage_ActionableViaTable(t *testing.T) {
	f := newFixture()
	out := f.svc.OnMessage(context.Background(), domain.InboundMessage{
		Data: map[string]string{"table_number": "5"},
	})
	if out != domain.OutcomeRendered {
		t.Fatalf("outcome = %s, want rendered", out)
	}

	id := identity.NewResolver(identity.ClockFunc(func() time.Time { return time.UnixMilli(1_700_000_000_123) })).ResolveID("")
	spec, ok := f.surface.Get(id)
	if !ok {
		t.Fatalf("no notification under id %d", id)
	}
	if spec.Title != "Mesa 5 solicita mozo" || spec.Body != "Nueva llamada de mesa" {
		t.Errorf("title/body = %q/%q", spec.Title, spec.Body)
	}
	if spec.ChannelID != domain.FallbackChannelID {
		t.Errorf("channel = %q", spec.ChannelID)
	}
}

func TestOnMessage_ActionableViaTypeOnly(t *testing.T) {
	f := newFixture()
	out := f.svc.OnMessage(context.Background(), domain.InboundMessage{
		Data: map[string]string{"type": "new_call"},
	})
	if out != domain.OutcomeRendered {
		t.Fatalf("outcome = %s, want rendered", out)
	}
	if f.surface.Len() != 1 {
		t.Fatalf("visible = %d, want 1", f.surface.Len())
	}
}

func TestOnMessage_ChannelEnsuredBeforeDispatch(t *testing.T) {
	f := newFixture()
	f.svc.OnMessage(context.Background(), domain.InboundMessage{
		Data: map[string]string{"table_number": "2", "channel_id": "waiter_urgent", "call_id": "c-2"},
	})

	if !f.surface.channelAtCall["waiter_urgent"] {
		t.Fatal("channel waiter_urgent did not exist at dispatch time")
	}
	ch, _ := f.registry.GetChannel(context.Background(), "waiter_urgent")
	if ch.Name != DynamicChannelName || ch.Description != DynamicChannelDescription {
		t.Errorf("channel = %+v", ch)
	}
	spec, ok := f.surface.Get(identity.HashString("c-2"))
	if !ok || spec.ChannelID != "waiter_urgent" {
		t.Fatalf("spec = %+v, ok = %v", spec, ok)
	}
}

func TestOnMessage_NonActionable(t *testing.T) {
	f := newFixture()
	out := f.svc.OnMessage(context.Background(), domain.InboundMessage{
		Data: map[string]string{"foo": "bar"},
	})
	if out != domain.OutcomeSuppressed {
		t.Fatalf("outcome = %s, want suppressed", out)
	}
	if f.surface.Calls() != 0 {
		t.Fatal("render must not be invoked for non-actionable messages")
	}
	if f.registry.Len() != 0 {
		t.Fatal("no channel should be ensured for non-actionable messages")
	}
	f.svc.Wait()
	if len(f.recorder.recs) != 1 || f.recorder.recs[0].Outcome != domain.OutcomeSuppressed {
		t.Fatalf("records = %+v", f.recorder.recs)
	}
}

func TestOnMessage_SameCallReplaces(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.svc.OnMessage(ctx, domain.InboundMessage{Data: map[string]string{"callId": "abc", "message": "first"}})
	f.svc.OnMessage(ctx, domain.InboundMessage{Data: map[string]string{"callID": "abc", "message": "second"}})

	if f.surface.Len() != 1 {
		t.Fatalf("visible = %d, want 1", f.surface.Len())
	}
	spec, _ := f.surface.Get(identity.HashString("abc"))
	if spec.Body != "second" {
		t.Fatalf("body = %q, want second", spec.Body)
	}
}

func TestOnMessage_RecordsAndMetrics(t *testing.T) {
	f := newFixture()
	f.recorder.err = errors.New("db down")
	f.svc.OnMessage(context.Background(), domain.InboundMessage{
		MessageID: "m-1",
		Data:      map[string]string{"table_number": "9", "call_id": "x"},
	})
	f.svc.Wait()

	if len(f.recorder.recs) != 1 {
		t.Fatalf("records = %d, want 1", len(f.recorder.recs))
	}
	rec := f.recorder.recs[0]
	if rec.ID == "" || rec.MessageID != "m-1" || rec.Outcome != domain.OutcomeRendered {
		t.Errorf("record = %+v", rec)
	}
	if rec.NotificationID != identity.HashString("x") {
		t.Errorf("notification id = %d", rec.NotificationID)
	}
	if f.metrics.outcomes[domain.OutcomeRendered] != 1 {
		t.Errorf("rendered count = %d", f.metrics.outcomes[domain.OutcomeRendered])
	}
}

// stuckRecorder blocks every write until release is closed or the write
// context ends.
type stuckRecorder struct {
	release chan struct{}
	calls   chan struct{}
}

func (r *stuckRecorder) Record(ctx context.Context, _ domain.DeliveryRecord) error {
	r.calls <- struct{}{}
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestOnMessage_StuckRecorderDoesNotBlock(t *testing.T) {
	rec := &stuckRecorder{release: make(chan struct{}), calls: make(chan struct{}, 2)}
	surface := render.NewMemorySurface()
	svc := NewService(Deps{
		Registry: channels.NewMemoryRegistry(),
		Surface:  surface,
		Recorder: rec,
	}, discardLogger())

	done := make(chan domain.Outcome, 2)
	go func() {
		done <- svc.OnMessage(context.Background(), domain.InboundMessage{Data: map[string]string{"table_number": "5", "call_id": "a"}})
		done <- svc.OnMessage(context.Background(), domain.InboundMessage{Data: map[string]string{"table_number": "6", "call_id": "b"}})
	}()

	for i := 0; i < 2; i++ {
		select {
		case out := <-done:
			if out != domain.OutcomeRendered {
				t.Fatalf("outcome = %s", out)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("OnMessage blocked on the delivery recorder")
		}
	}
	if surface.Len() != 2 {
		t.Fatalf("visible = %d, want 2", surface.Len())
	}

	close(rec.release)
	svc.Wait()
	if len(rec.calls) != 2 {
		t.Fatalf("record calls = %d, want 2", len(rec.calls))
	}
}

func TestOnMessage_Concurrent(t *testing.T) {
	f := newFixture()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.svc.OnMessage(context.Background(), domain.InboundMessage{
				Data: map[string]string{"call_id": "shared", "table_number": "1"},
			})
		}()
	}
	wg.Wait()

	if f.registry.Len() != 1 || f.surface.Len() != 1 {
		t.Fatalf("channels = %d, visible = %d, want 1/1", f.registry.Len(), f.surface.Len())
	}
}

func TestOnMessage_NilCollaborators(t *testing.T) {
	svc := NewService(Deps{}, discardLogger())
	out := svc.OnMessage(context.Background(), domain.InboundMessage{Data: map[string]string{"table_number": "1"}})
	if out != domain.OutcomeRendered {
		t.Fatalf("outcome = %s", out)
	}
}

func TestOnTokenRefresh(t *testing.T) {
	f := newFixture()
	f.svc.OnTokenRefresh(context.Background(), "tok-1")
	f.svc.Wait()

	got, err := f.svc.Token(context.Background())
	if err != nil || got != "tok-1" {
		t.Fatalf("Token() = %q, %v", got, err)
	}
	if f.metrics.tokens != 1 {
		t.Fatalf("token observations = %d", f.metrics.tokens)
	}
}

func TestOnTokenRefresh_SurvivesCancelledContext(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.svc.OnTokenRefresh(ctx, "tok-2")
	f.svc.Wait()

	got, _ := f.tokens.Get(context.Background(), domain.TokenStoreKey)
	if got != "tok-2" {
		t.Fatalf("token = %q, want tok-2", got)
	}
}

func TestOnTokenRefresh_FailureLoggedOnly(t *testing.T) {
	f := newFixture()
	f.tokens.err = errors.New("disk full")

	f.svc.OnTokenRefresh(context.Background(), "tok-3")
	f.svc.Wait()

	if _, err := f.tokens.Get(context.Background(), domain.TokenStoreKey); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEnsureDefaults(t *testing.T) {
	f := newFixture()
	f.svc.EnsureDefaults(context.Background())
	if f.registry.Len() != len(channels.DefaultDefinitions) {
		t.Fatalf("channels = %d", f.registry.Len())
	}
}
