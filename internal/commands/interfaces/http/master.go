package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"device-relay/internal/api/response"
	"device-relay/internal/audit"
	"device-relay/internal/auth"
	commandsapp "device-relay/internal/commands/application"
	commands "device-relay/internal/commands/domain"
	"device-relay/internal/commands/interfaces/export"
	"device-relay/internal/observability/metrics"
)

const masterPrefix = "/api/master/"

// MasterHandler provides the operator command endpoints.
type MasterHandler struct {
	service     *commandsapp.Service
	auditLogger audit.Logger
	now         func() time.Time
}

// NewMasterHandler constructs a handler.
func NewMasterHandler(service *commandsapp.Service, auditLogger audit.Logger) (*MasterHandler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	return &MasterHandler{
		service:     service,
		auditLogger: auditLogger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP handles every route under /api/master/.
func (h *MasterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, commands.ErrOperatorRequired)
		return
	}
	rest := strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), masterPrefix)
	parts := strings.Split(rest, "/")

	switch {
	case rest == "command/send":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleSend(w, r, identity)
	case len(parts) == 2 && parts[0] == "command" && parts[1] != "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleResult(w, r, identity, parts[1])
	case rest == "commands":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, identity)
	case len(parts) == 2 && parts[0] == "commands" && strings.HasPrefix(parts[1], "export."):
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleExport(w, r, identity, strings.TrimPrefix(parts[1], "export."))
	case len(parts) == 3 && parts[0] == "device" && parts[2] == "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDeviceStatus(w, parts[1])
	case rest == "devices":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDevices(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *MasterHandler) handleSend(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req commandsapp.IssueRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	resp, err := h.service.Issue(r.Context(), identity, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "Command sent to device", response.Envelope{
		"commandId": resp.CommandID,
		"deviceId":  resp.DeviceID,
		"timestamp": resp.Timestamp,
	})
	h.logAudit(r, identity, audit.ActionCommandIssue, resp.CommandID, resp.DeviceID, map[string]any{
		"command_length": len(req.Command),
	})
}

func (h *MasterHandler) handleResult(w http.ResponseWriter, r *http.Request, identity auth.Identity, commandID string) {
	view, err := h.service.GetResult(r.Context(), identity, commandID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{"command": view})
}

func (h *MasterHandler) handleList(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	views, err := h.service.ListIssued(r.Context(), identity, r.URL.Query().Get("deviceId"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{
		"commands": views,
		"count":    len(views),
	})
}

func (h *MasterHandler) handleExport(w http.ResponseWriter, r *http.Request, identity auth.Identity, format string) {
	var (
		build       func(export.Report) ([]byte, error)
		contentType string
	)
	switch format {
	case "csv":
		build, contentType = export.BuildCSV, "text/csv; charset=utf-8"
	case "xlsx":
		build, contentType = export.BuildXLSX, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		build, contentType = export.BuildPDF, "application/pdf"
	default:
		http.NotFound(w, r)
		return
	}

	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveCommandExport(format, result, time.Since(start))
	}()

	deviceID := strings.TrimSpace(r.URL.Query().Get("deviceId"))
	views, err := h.service.ListIssued(r.Context(), identity, deviceID)
	if err != nil {
		result = metrics.ResultError
		response.Error(w, err)
		return
	}
	now := h.now()
	data, err := build(export.Report{
		Operator:    identity.Email,
		DeviceID:    deviceID,
		GeneratedAt: now,
		Commands:    views,
	})
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="commands-%s.%s"`, now.Format("20060102-150405"), format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, identity, audit.ActionCommandExport, "", deviceID, map[string]any{
		"format": format,
		"count":  len(views),
	})
}

func (h *MasterHandler) handleDeviceStatus(w http.ResponseWriter, deviceID string) {
	status, err := h.service.DeviceStatus(deviceID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{
		"deviceId":    status.DeviceID,
		"online":      status.Online,
		"lastSeen":    status.LastSeen,
		"lastSeenAgo": status.LastSeenAgo,
		"timestamp":   h.now(),
	})
}

func (h *MasterHandler) handleDevices(w http.ResponseWriter, r *http.Request) {
	overview, err := h.service.Devices(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{
		"devices": overview.Devices,
		"stats":   overview.Stats,
	})
}

func (h *MasterHandler) logAudit(r *http.Request, identity auth.Identity, action, commandID, deviceID string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        identity.Email,
		Role:         string(identity.Role),
		Action:       action,
		ResourceType: "command",
		ResourceID:   commandID,
		DeviceID:     deviceID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}
