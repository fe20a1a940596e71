package handler

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozoqr/waiterpush/internal/domain"
	"github.com/mozoqr/waiterpush/internal/server/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePipeline struct {
	mu       sync.Mutex
	messages []domain.InboundMessage
	tokens   []string
	stored   string
	readErr  error
}

func (f *fakePipeline) OnMessage(_ context.Context, msg domain.InboundMessage) domain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	if msg.Data["table_number"] != "" {
		return domain.OutcomeRendered
	}
	return domain.OutcomeSuppressed
}

func (f *fakePipeline) OnTokenRefresh(_ context.Context, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakePipeline) Token(context.Context) (string, error) {
	if f.readErr != nil {
		return "", f.readErr
	}
	if f.stored == "" {
		return "", domain.ErrNotFound
	}
	return f.stored, nil
}

func newMux(p *fakePipeline) *http.ServeMux {
	h := NewPushHandler(p, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/push/messages", h.PostMessage)
	mux.HandleFunc("POST /api/push/token", h.PostToken)
	mux.HandleFunc("GET /api/push/token", h.GetToken)
	return mux
}

func TestPostMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		outcome domain.Outcome
	}{
		{"waiter call", `{"message_id":"m1","data":{"table_number":"5"}}`, http.StatusAccepted, domain.OutcomeRendered},
		{"not a call", `{"message_id":"m2","data":{"type":"promo"}}`, http.StatusAccepted, domain.OutcomeSuppressed},
		{"bad json", `{"data":`, http.StatusBadRequest, ""},
		{"too large", `{"data":{"x":"` + strings.Repeat("a", maxBodyBytes) + `"}}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePipeline{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/push/messages", strings.NewReader(tt.body))
			newMux(p).ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			if tt.status != http.StatusAccepted {
				assert.Empty(t, p.messages)
				return
			}
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.outcome), resp["outcome"])
			assert.Len(t, p.messages, 1)
		})
	}
}

func TestPostToken(t *testing.T) {
	p := &fakePipeline{}
	mux := newMux(p)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/push/token", strings.NewReader(`{"token":"tok-1"}`)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"tok-1"}, p.tokens)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/push/token", strings.NewReader(`{"token":"  "}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, p.tokens, 1)
}

func TestGetToken(t *testing.T) {
	tests := []struct {
		name   string
		p      *fakePipeline
		status int
	}{
		{"stored", &fakePipeline{stored: "tok-9"}, http.StatusOK},
		{"missing", &fakePipeline{}, http.StatusNotFound},
		{"store down", &fakePipeline{readErr: errors.New("redis down")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			newMux(tt.p).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/push/token", nil))
			require.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"token":"tok-9"}`, rec.Body.String())
			}
		})
	}
}

type fakeBoard struct {
	frames    []ws.Frame
	dismissed []int32
	err       error
}

func (b *fakeBoard) Visible() []ws.Frame { return b.frames }

func (b *fakeBoard) Dismiss(_ context.Context, id int32) error {
	if b.err != nil {
		return b.err
	}
	b.dismissed = append(b.dismissed, id)
	return nil
}

func TestNotifications(t *testing.T) {
	board := &fakeBoard{frames: []ws.Frame{{Type: ws.FrameNotification, ID: 7, Channel: "waiter_normal"}}}
	h := NewNotificationHandler(board, testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/notifications", h.ListNotifications)
	mux.HandleFunc("DELETE /api/notifications/{id}", h.DismissNotification)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var frames []ws.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frames))
	require.Len(t, frames, 1)
	assert.Equal(t, int32(7), frames[0].ID)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/notifications/-173846973", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int32{-173846973}, board.dismissed)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/notifications/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	board.err = domain.ErrSurfaceUnavailable
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/notifications/1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeDeliveries struct {
	opts domain.ListOpts
	recs []domain.DeliveryRecord
	err  error
}

func (f *fakeDeliveries) List(_ context.Context, opts domain.ListOpts) ([]domain.DeliveryRecord, error) {
	f.opts = opts
	return f.recs, f.err
}

func TestListDeliveries(t *testing.T) {
	store := &fakeDeliveries{recs: []domain.DeliveryRecord{{ID: "r1", Outcome: domain.OutcomeRendered}}}
	h := NewDeliveryHandler(store, testLogger())

	rec := httptest.NewRecorder()
	h.ListDeliveries(rec, httptest.NewRequest(http.MethodGet, "/api/deliveries?limit=1000&offset=3&since=2024-05-01T00:00:00Z&until=bogus", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 500, store.opts.Limit)
	assert.Equal(t, 3, store.opts.Offset)
	require.NotNil(t, store.opts.Since)
	assert.True(t, store.opts.Since.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, store.opts.Until)
	assert.Contains(t, rec.Body.String(), `"id":"r1"`)

	store.recs = nil
	rec = httptest.NewRecorder()
	h.ListDeliveries(rec, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, "[]", rec.Body.String())
	assert.Equal(t, 50, store.opts.Limit)

	store.err = errors.New("db down")
	rec = httptest.NewRecorder()
	h.ListDeliveries(rec, httptest.NewRequest(http.MethodGet, "/api/deliveries", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeChannels []domain.Channel

func (f fakeChannels) ListChannels(context.Context) ([]domain.Channel, error) { return f, nil }

func TestListChannels(t *testing.T) {
	h := NewChannelHandler(fakeChannels{{ID: "waiter_normal", Name: "Llamadas Mesa", Importance: domain.ImportanceHigh}}, testLogger())
	rec := httptest.NewRecorder()
	h.ListChannels(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"waiter_normal"`)
}

func TestHealthCheck(t *testing.T) {
	ok := Checker{Name: "redis", Check: func(context.Context) error { return nil }}
	bad := Checker{Name: "postgres", Check: func(context.Context) error { return errors.New("refused") }}

	rec := httptest.NewRecorder()
	NewHealthHandler([]Checker{ok}, testLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthHandler([]Checker{ok, bad}, testLogger()).HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "refused", body.Dependencies["postgres"])
	assert.Equal(t, "ok", body.Dependencies["redis"])
}

func TestGetStatus(t *testing.T) {
	h := &StatusHandler{Mode: "full", Transport: "redis", StartedAt: time.Now().Add(-time.Minute), Clients: func() int { return 3 }}
	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "full", body["mode"])
	assert.EqualValues(t, 3, body["ws_clients"])
	assert.GreaterOrEqual(t, body["uptime_seconds"].(float64), float64(59))
}
