package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}
	tpl, err := NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}
	msg, err := tpl.LoginCode("ops@example.com", LoginCodeData{Code: "123456", ValidFor: "10 minutes"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := notifier.Notify(context.Background(), msg); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		for _, expected := range []string{"ops@example.com", "123456", "10 minutes"} {
			if !strings.Contains(payload.Text.Content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, payload.Text.Content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier, err := NewWebhookNotifier(server.URL)
	if err != nil {
		t.Fatalf("new webhook notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), Message{To: "ops@example.com", Body: "x"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestEmailNotifierPayload(t *testing.T) {
	var (
		gotAuth    string
		gotPayload emailPayload
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"email-1"}`))
	}))
	defer server.Close()

	notifier, err := NewEmailNotifier(server.URL, "re_test", "relay@example.com")
	if err != nil {
		t.Fatalf("new email notifier: %v", err)
	}
	tpl, err := NewTemplates()
	if err != nil {
		t.Fatalf("new templates: %v", err)
	}
	msg, err := tpl.APIKey("ops@example.com", APIKeyData{DeviceName: "Lab Pi", DeviceID: "dev-1", APIKey: "sk_abc_123"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if err := notifier.Notify(context.Background(), msg); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if gotAuth != "Bearer re_test" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotPayload.From != "relay@example.com" || len(gotPayload.To) != 1 || gotPayload.To[0] != "ops@example.com" {
		t.Fatalf("unexpected payload: %+v", gotPayload)
	}
	if !strings.Contains(gotPayload.Text, "sk_abc_123") || !strings.Contains(gotPayload.Text, "Lab Pi") {
		t.Fatalf("expected key and device in body, got %s", gotPayload.Text)
	}
}

func TestNewEmailNotifierValidation(t *testing.T) {
	if _, err := NewEmailNotifier("", "", "relay@example.com"); err == nil {
		t.Fatalf("expected error for empty api key")
	}
	if _, err := NewEmailNotifier("", "re_test", ""); err == nil {
		t.Fatalf("expected error for empty sender")
	}
	n, err := NewEmailNotifier("", "re_test", "relay@example.com")
	if err != nil {
		t.Fatalf("new email notifier: %v", err)
	}
	if n.endpoint != DefaultEmailEndpoint {
		t.Fatalf("expected default endpoint, got %s", n.endpoint)
	}
}

func TestLogNotifierWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	notifier, err := NewLogNotifier(log.New(&buf, "", 0))
	if err != nil {
		t.Fatalf("new log notifier: %v", err)
	}
	if err := notifier.Notify(context.Background(), Message{To: "ops@example.com", Subject: "Your login code", Body: "Your verification code is: 654321"}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), "654321") || !strings.Contains(buf.String(), "to=ops@example.com") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return r.err
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("boom")}
	ok := &recordingNotifier{}
	multi := NewMultiNotifier(failing, nil, ok)

	err := multi.Notify(context.Background(), Message{To: "ops@example.com"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(failing.msgs) != 1 || len(ok.msgs) != 1 {
		t.Fatalf("expected both notifiers to receive the message")
	}
}
