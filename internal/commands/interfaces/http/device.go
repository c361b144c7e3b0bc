package http

import (
	"errors"
	"net/http"

	"device-relay/internal/api/response"
	"device-relay/internal/auth"
	commandsapp "device-relay/internal/commands/application"
	commands "device-relay/internal/commands/domain"
)

// DeviceHandler provides the polling endpoints used by devices.
type DeviceHandler struct {
	service *commandsapp.Service
}

// NewDeviceHandler constructs a handler.
func NewDeviceHandler(service *commandsapp.Service) (*DeviceHandler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	return &DeviceHandler{service: service}, nil
}

// Poll handles GET /api/device/commands.
func (h *DeviceHandler) Poll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	device, ok := auth.DeviceFromContext(r.Context())
	if !ok {
		response.Error(w, commands.ErrDeviceRequired)
		return
	}
	result, err := h.service.PollPending(r.Context(), device)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{
		"commands":   result.Commands,
		"deviceId":   result.DeviceID,
		"deviceName": result.DeviceName,
		"timestamp":  result.Timestamp,
	})
}

// SubmitResult handles POST /api/device/command-result.
func (h *DeviceHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	device, ok := auth.DeviceFromContext(r.Context())
	if !ok {
		response.Error(w, commands.ErrDeviceRequired)
		return
	}
	var req commandsapp.SubmitRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	view, err := h.service.SubmitResult(r.Context(), device, req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "", response.Envelope{"command": view})
}

// Routes registers the device endpoints on mux.
func (h *DeviceHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/device/commands", h.Poll)
	mux.HandleFunc("/api/device/command-result", h.SubmitResult)
}
