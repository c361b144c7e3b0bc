package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// DefaultEmailEndpoint is the Resend send-email endpoint.
const DefaultEmailEndpoint = "https://api.resend.com/emails"

type emailPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// EmailNotifier sends messages through a Resend-compatible HTTP email API.
type EmailNotifier struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

// NewEmailNotifier constructs an email notifier. Empty endpoint means DefaultEmailEndpoint.
func NewEmailNotifier(endpoint, apiKey, from string, opts ...Option) (*EmailNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("email notifier: empty api key")
	}
	if from == "" {
		return nil, errors.New("email notifier: empty sender")
	}
	if endpoint == "" {
		endpoint = DefaultEmailEndpoint
	}
	client := &http.Client{Timeout: 10 * time.Second}
	for _, opt := range opts {
		client = opt(client)
	}
	return &EmailNotifier{endpoint: endpoint, apiKey: apiKey, from: from, client: client}, nil
}

// Notify sends one plain-text email.
func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("email notifier: empty recipient")
	}
	body, err := json.Marshal(emailPayload{
		From:    e.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, e.client, e.endpoint, e.apiKey, body)
}
