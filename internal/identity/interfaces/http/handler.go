package http

import (
	"errors"
	"net/http"

	"device-relay/internal/api/response"
	"device-relay/internal/auth"
	identityapp "device-relay/internal/identity/application"
)

// Handler provides the login code endpoints.
type Handler struct {
	service *identityapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *identityapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("identity handler: nil service")
	}
	return &Handler{service: service}, nil
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req emailRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	sent, err := h.service.RequestCode(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "Verification code sent to your email", response.Envelope{
		"email":     sent.Email,
		"expiresIn": int(sent.ExpiresIn.Seconds()),
	})
}

// ResendCode handles POST /api/auth/resend-code.
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req emailRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	sent, err := h.service.ResendCode(r.Context(), req.Email)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "New verification code sent", response.Envelope{
		"email":     sent.Email,
		"expiresIn": int(sent.ExpiresIn.Seconds()),
	})
}

// Verify handles POST /api/auth/verify.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req verifyRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	session, err := h.service.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, http.StatusOK, "Verification successful!", response.Envelope{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
		"user": response.Envelope{
			"email":    session.Email,
			"verified": true,
		},
	})
}

// VerifyStatus handles GET /api/auth/verify-status.
func (h *Handler) VerifyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, auth.ErrNoToken)
		return
	}
	response.OK(w, http.StatusOK, "User is authenticated", response.Envelope{"user": identity})
}

// Routes registers the identity endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/login", h.Login)
	mux.HandleFunc("/api/auth/verify", h.Verify)
	mux.HandleFunc("/api/auth/resend-code", h.ResendCode)
	mux.HandleFunc("/api/auth/verify-status", h.VerifyStatus)
}
