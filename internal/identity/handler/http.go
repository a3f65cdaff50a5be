// Package handler exposes the auth service over HTTP. All routes are public;
// logout additionally honors a Bearer access token when one is presented.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/audit"
	"clinic-messaging/backend/internal/identity/domain"
	"clinic-messaging/backend/internal/identity/service"
	"clinic-messaging/backend/internal/security"
)

// HTTP handles the /api/auth routes.
type HTTP struct {
	svc    *service.AuthService
	tokens *security.TokenProvider
	audit  audit.AuditLogger
	logger zerolog.Logger
}

// NewHTTP returns an auth HTTP handler. auditLogger may be nil.
func NewHTTP(svc *service.AuthService, tokens *security.TokenProvider, auditLogger audit.AuditLogger, logger zerolog.Logger) *HTTP {
	return &HTTP{
		svc:    svc,
		tokens: tokens,
		audit:  auditLogger,
		logger: logger.With().Str("component", "auth_http").Logger(),
	}
}

func (h *HTTP) auditEvent(r *http.Request, userID, action, metadata string) {
	if h.audit == nil {
		return
	}
	h.audit.LogEvent(audit.WithRemoteAddr(r.Context(), r), userID, action, "auth", metadata)
}

// Register adds the auth routes to mux.
func (h *HTTP) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.register)
	mux.HandleFunc("POST /api/auth/login", h.login)
	mux.HandleFunc("POST /api/auth/refresh", h.refresh)
	mux.HandleFunc("POST /api/auth/logout", h.logout)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *domain.User `json:"user"`
}

func (h *HTTP) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	user, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Role, req.FullName)
	if err != nil {
		if errors.Is(err, service.ErrEmailAlreadyRegistered) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.auditEvent(r, user.ID, "register", "role="+user.Role)
	writeJSON(w, http.StatusCreated, user)
}

func (h *HTTP) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.auditEvent(r, "", "login_failure", "email="+req.Email)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.serverError(w, err, "login")
		return
	}
	h.auditEvent(r, res.User.ID, "login", "")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		User:         res.User,
	})
}

func (h *HTTP) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefreshToken) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.serverError(w, err, "refresh")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    res.ExpiresAt,
		User:         res.User,
	})
}

func (h *HTTP) logout(w http.ResponseWriter, r *http.Request) {
	// Body is optional; logout with neither token is a no-op.
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	var accessJTI, userID string
	var accessExpiry time.Time
	if token := bearerToken(r); token != "" {
		if info, err := h.tokens.ValidateAccess(token); err == nil {
			accessJTI, userID, accessExpiry = info.JTI, info.UserID, info.ExpiresAt
		}
	}
	h.svc.Logout(r.Context(), req.RefreshToken, accessJTI, accessExpiry, userID)
	h.auditEvent(r, userID, "logout", "")
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) serverError(w http.ResponseWriter, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
