package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"device-relay/internal/apperr"
	"device-relay/internal/audit"
	"device-relay/internal/auth"
	commandsapp "device-relay/internal/commands/application"
	"device-relay/internal/commands/infrastructure/memory"
	"device-relay/internal/presence"
)

var testSecret = []byte("test-secret")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type stubDevices map[string]auth.Device

func (s stubDevices) Authenticate(_ context.Context, rawKey string) (auth.Device, error) {
	device, ok := s[rawKey]
	if !ok {
		return auth.Device{}, apperr.New(apperr.KindUnauthenticated, "INVALID_API_KEY", "Invalid API key")
	}
	return device, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

type relay struct {
	server *httptest.Server
	clock  *fakeClock
	audit  *recordingAudit
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := commandsapp.NewService(memory.NewCommandRepository(), presence.NewTracker(clock), commandsapp.WithClock(clock))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	rec := &recordingAudit{}
	master, err := NewMasterHandler(svc, rec)
	if err != nil {
		t.Fatalf("master handler: %v", err)
	}
	master.now = clock.Now
	device, err := NewDeviceHandler(svc)
	if err != nil {
		t.Fatalf("device handler: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/master/", master)
	device.Routes(mux)

	policy := auth.NewDefaultPolicy(nil, nil, []string{"/api/device/"})
	mw := auth.NewMiddleware(testSecret, policy, stubDevices{
		"sk_pi":     {CredentialID: "cred-1", DeviceID: "pi", DeviceName: "Lab Pi", OwnerEmail: "a@x.com"},
		"sk_laptop": {CredentialID: "cred-2", DeviceID: "laptop", DeviceName: "Laptop", OwnerEmail: "b@x.com"},
	})
	server := httptest.NewServer(mw.Wrap(mux))
	t.Cleanup(server.Close)
	return &relay{server: server, clock: clock, audit: rec}
}

func (rl *relay) operator(t *testing.T, email string) string {
	t.Helper()
	token, _, err := auth.IssueToken(testSecret, email, time.Now().UTC(), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (rl *relay) do(t *testing.T, method, path, token, apiKey string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, rl.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestPingPongOverHTTP(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")

	status, body := rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "pi", "command": "ping"})
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("send: %d %v", status, body)
	}
	commandID, _ := body["commandId"].(string)
	if !strings.HasPrefix(commandID, "cmd_") {
		t.Fatalf("unexpected command id %q", commandID)
	}

	status, body = rl.do(t, http.MethodGet, "/api/device/commands", "", "sk_pi", nil)
	if status != http.StatusOK {
		t.Fatalf("poll: %d %v", status, body)
	}
	list, _ := body["commands"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected one pending command, got %v", body["commands"])
	}
	first := list[0].(map[string]any)
	if first["id"] != commandID || first["command"] != "ping" || first["issuedBy"] != "a@x.com" {
		t.Fatalf("unexpected pending command: %v", first)
	}
	if body["deviceName"] != "Lab Pi" {
		t.Fatalf("expected device name, got %v", body["deviceName"])
	}

	status, body = rl.do(t, http.MethodPost, "/api/device/command-result", "", "sk_pi", map[string]string{"commandId": commandID, "result": "pong"})
	if status != http.StatusOK {
		t.Fatalf("submit: %d %v", status, body)
	}

	status, body = rl.do(t, http.MethodGet, "/api/master/command/"+commandID, token, "", nil)
	if status != http.StatusOK {
		t.Fatalf("get: %d %v", status, body)
	}
	cmd := body["command"].(map[string]any)
	if cmd["status"] != "completed" || cmd["result"] != "pong" {
		t.Fatalf("unexpected command view: %v", cmd)
	}

	status, body = rl.do(t, http.MethodGet, "/api/device/commands", "", "sk_pi", nil)
	if status != http.StatusOK || len(body["commands"].([]any)) != 0 {
		t.Fatalf("expected empty queue after result: %d %v", status, body)
	}
}

func TestPendingResultOmitsCompletionFields(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")
	_, body := rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "pi", "command": "uptime"})
	commandID := body["commandId"].(string)

	status, body := rl.do(t, http.MethodGet, "/api/master/command/"+commandID, token, "", nil)
	if status != http.StatusOK {
		t.Fatalf("get: %d %v", status, body)
	}
	cmd := body["command"].(map[string]any)
	if cmd["status"] != "pending" {
		t.Fatalf("expected pending, got %v", cmd["status"])
	}
	if _, ok := cmd["result"]; ok {
		t.Fatalf("pending command must not carry a result: %v", cmd)
	}
}

func TestSendValidation(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")
	status, body := rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "pi"})
	if status != http.StatusBadRequest || body["code"] != "FIELDS_REQUIRED" {
		t.Fatalf("expected FIELDS_REQUIRED, got %d %v", status, body)
	}
}

func TestOwnershipOverHTTP(t *testing.T) {
	rl := newRelay(t)
	owner := rl.operator(t, "a@x.com")
	other := rl.operator(t, "b@x.com")
	_, body := rl.do(t, http.MethodPost, "/api/master/command/send", owner, "", map[string]string{"deviceId": "pi", "command": "ls"})
	commandID := body["commandId"].(string)

	status, body := rl.do(t, http.MethodGet, "/api/master/command/"+commandID, other, "", nil)
	if status != http.StatusForbidden || body["code"] != "NOT_ISSUER" {
		t.Fatalf("expected 403 NOT_ISSUER, got %d %v", status, body)
	}

	status, body = rl.do(t, http.MethodPost, "/api/device/command-result", "", "sk_laptop", map[string]string{"commandId": commandID, "result": "x"})
	if status != http.StatusForbidden || body["code"] != "NOT_TARGET_DEVICE" {
		t.Fatalf("expected 403 NOT_TARGET_DEVICE, got %d %v", status, body)
	}

	status, body = rl.do(t, http.MethodGet, "/api/master/command/cmd_missing", owner, "", nil)
	if status != http.StatusNotFound || body["code"] != "COMMAND_NOT_FOUND" {
		t.Fatalf("expected 404, got %d %v", status, body)
	}

	status, _ = rl.do(t, http.MethodGet, "/api/device/commands", "", "sk_laptop", nil)
	if status != http.StatusOK {
		t.Fatalf("poll: %d", status)
	}
	_, body = rl.do(t, http.MethodGet, "/api/device/commands", "", "sk_laptop", nil)
	if len(body["commands"].([]any)) != 0 {
		t.Fatalf("laptop must not see pi commands: %v", body)
	}
}

func TestDeviceStatusOverHTTP(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")

	status, body := rl.do(t, http.MethodGet, "/api/master/device/pi/status", token, "", nil)
	if status != http.StatusOK || body["online"] != false || body["lastSeen"] != nil {
		t.Fatalf("unknown device should be offline: %d %v", status, body)
	}

	rl.do(t, http.MethodGet, "/api/device/commands", "", "sk_pi", nil)
	rl.clock.Advance(30 * time.Second)
	_, body = rl.do(t, http.MethodGet, "/api/master/device/pi/status", token, "", nil)
	if body["online"] != true || body["lastSeenAgo"] != "30 seconds ago" {
		t.Fatalf("expected online 30s ago, got %v", body)
	}
	if body["timestamp"] == nil {
		t.Fatalf("expected timestamp")
	}

	rl.clock.Advance(2 * time.Minute)
	_, body = rl.do(t, http.MethodGet, "/api/master/device/pi/status", token, "", nil)
	if body["online"] != false {
		t.Fatalf("expected offline after window, got %v", body)
	}

	_, body = rl.do(t, http.MethodGet, "/api/master/devices", token, "", nil)
	stats := body["stats"].(map[string]any)
	if stats["totalDevices"] != float64(1) || stats["onlineDevices"] != float64(0) {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestListAndExport(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")
	rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "pi", "command": "ls"})
	rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "laptop", "command": "df -h"})
	rl.do(t, http.MethodPost, "/api/master/command/send", rl.operator(t, "b@x.com"), "", map[string]string{"deviceId": "pi", "command": "whoami"})

	_, body := rl.do(t, http.MethodGet, "/api/master/commands", token, "", nil)
	if body["count"] != float64(2) {
		t.Fatalf("expected 2 commands, got %v", body)
	}
	_, body = rl.do(t, http.MethodGet, "/api/master/commands?deviceId=pi", token, "", nil)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 pi command, got %v", body)
	}

	for format, contentType := range map[string]string{
		"csv":  "text/csv; charset=utf-8",
		"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"pdf":  "application/pdf",
	} {
		req, _ := http.NewRequest(http.MethodGet, rl.server.URL+"/api/master/commands/export."+format, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", format, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != contentType {
			t.Fatalf("%s: unexpected %d %s", format, resp.StatusCode, resp.Header.Get("Content-Type"))
		}
		if !strings.Contains(resp.Header.Get("Content-Disposition"), "commands-20260301-120000."+format) {
			t.Fatalf("%s: unexpected disposition %s", format, resp.Header.Get("Content-Disposition"))
		}
	}

	status, _ := rl.do(t, http.MethodGet, "/api/master/commands/export.doc", token, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unknown format: expected 404, got %d", status)
	}
}

func TestSendIsAudited(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")
	_, body := rl.do(t, http.MethodPost, "/api/master/command/send", token, "", map[string]string{"deviceId": "pi", "command": "reboot"})

	rl.audit.mu.Lock()
	defer rl.audit.mu.Unlock()
	if len(rl.audit.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(rl.audit.entries))
	}
	entry := rl.audit.entries[0]
	if entry.Action != audit.ActionCommandIssue || entry.Actor != "a@x.com" || entry.ResourceID != body["commandId"] || entry.DeviceID != "pi" {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestMethodAndRouteChecks(t *testing.T) {
	rl := newRelay(t)
	token := rl.operator(t, "a@x.com")
	status, _ := rl.do(t, http.MethodGet, "/api/master/command/send", token, "", nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
	status, _ = rl.do(t, http.MethodGet, "/api/master/unknown", token, "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	status, _ = rl.do(t, http.MethodPost, "/api/device/commands", "", "sk_pi", nil)
	if status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
	status, _ = rl.do(t, http.MethodGet, "/api/master/devices", "", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
}
