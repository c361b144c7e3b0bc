package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"device-relay/internal/api/response"
	"device-relay/internal/audit"
	"device-relay/internal/auth"
	credentialsapp "device-relay/internal/credentials/application"
	credentials "device-relay/internal/credentials/domain"
)

const basePath = "/api/auth/api-keys"

// Handler provides device credential endpoints for operators.
type Handler struct {
	service     *credentialsapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *credentialsapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("credentials handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP handles /api/auth/api-keys and /api/auth/api-keys/{id}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, credentials.ErrOwnerRequired)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == basePath {
		switch r.Method {
		case http.MethodPost:
			h.handleIssue(w, r, identity)
		case http.MethodGet:
			h.handleList(w, r, identity)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}
	id := strings.TrimPrefix(path, basePath+"/")
	if id == path || id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.handleRevoke(w, r, identity, id)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req credentialsapp.IssueRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	resp, err := h.service.Issue(r.Context(), credentialsapp.Requester{
		Email:     identity.Email,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	view := resp.Credential
	response.OK(w, http.StatusCreated, "API key generated for "+view.DeviceName, response.Envelope{
		"apiKeyInfo":     view,
		"securityNotice": "API key has been sent to your email. Store it securely as it will not be shown again.",
	})
	h.logAudit(r, identity, audit.ActionCredentialIssue, view.ID, view.DeviceID)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	views, err := h.service.List(r.Context(), identity.Email)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{
		"apiKeys": views,
		"count":   len(views),
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request, identity auth.Identity, id string) {
	if err := h.service.Revoke(r.Context(), identity.Email, id); err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "API key revoked successfully", nil)
	h.logAudit(r, identity, audit.ActionCredentialRevoke, id, "")
}

func (h *Handler) logAudit(r *http.Request, identity auth.Identity, action, credentialID, deviceID string) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"auth_method": identity.AuthMethod,
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        identity.Email,
		Role:         string(identity.Role),
		Action:       action,
		ResourceType: "credential",
		ResourceID:   credentialID,
		DeviceID:     deviceID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

// KeyCheck handles GET /api/auth/protected-by-api-key and echoes the calling device.
func (h *Handler) KeyCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	device, ok := auth.DeviceFromContext(r.Context())
	if !ok {
		response.Error(w, credentials.ErrNoAPIKey)
		return
	}
	permissions := device.Permissions
	if permissions == nil {
		permissions = []string{}
	}
	response.OK(w, http.StatusOK, "Access granted via API key", response.Envelope{
		"user":        device.OwnerEmail,
		"deviceId":    device.DeviceID,
		"deviceName":  device.DeviceName,
		"permissions": permissions,
	})
}
