package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// WebhookNotifier posts messages to a chat webhook endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// Option configures HTTP-backed notifiers.
type Option func(*http.Client) *http.Client

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(current *http.Client) *http.Client {
		if client != nil {
			return client
		}
		return current
	}
}

// NewWebhookNotifier constructs a webhook notifier.
func NewWebhookNotifier(url string, opts ...Option) (*WebhookNotifier, error) {
	if url == "" {
		return nil, errors.New("webhook notifier: empty url")
	}
	client := &http.Client{Timeout: 10 * time.Second}
	for _, opt := range opts {
		client = opt(client)
	}
	return &WebhookNotifier{url: url, client: client}, nil
}

// Notify posts the message using a DingTalk/WeCom-compatible text payload.
func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: fmt.Sprintf("[%s] to %s\n%s", msg.Subject, msg.To, msg.Body)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return postJSON(ctx, w.client, w.url, "", body)
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: non-2xx response %d from %s", resp.StatusCode, url)
	}
	return nil
}
