package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender posts every message as JSON to an arbitrary URL, signed
// with a shared bearer token when one is configured.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender.
func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	ID        int32             `json:"id"`
	ChannelID string            `json:"channel_id"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Tag       string            `json:"tag"`
	Route     string            `json:"route"`
	Urgent    bool              `json:"urgent"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// Send posts msg.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(webhookPayload{
		ID:        msg.ID,
		ChannelID: msg.ChannelID,
		Title:     msg.Title,
		Body:      msg.Body,
		Tag:       msg.Tag,
		Route:     msg.Route,
		Urgent:    msg.Urgent,
		Extras:    msg.Extras,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}
