// Package handler exposes the messaging service over HTTP. All routes require
// the auth middleware to have placed the caller's identity in context.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/messaging/domain"
	"clinic-messaging/backend/internal/messaging/service"
	"clinic-messaging/backend/internal/server/middleware"
)

// HTTP handles the /api/threads routes.
type HTTP struct {
	svc    *service.MessagingService
	logger zerolog.Logger
}

// NewHTTP returns a messaging HTTP handler.
func NewHTTP(svc *service.MessagingService, logger zerolog.Logger) *HTTP {
	return &HTTP{svc: svc, logger: logger.With().Str("component", "messaging_http").Logger()}
}

// Register adds the messaging routes to mux.
func (h *HTTP) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/threads", h.listThreads)
	mux.HandleFunc("POST /api/threads", h.createThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", h.listMessages)
	mux.HandleFunc("POST /api/threads/{id}/messages", h.sendMessage)
	mux.HandleFunc("POST /api/threads/{id}/read", h.markRead)
}

type createThreadRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
}

type sendMessageRequest struct {
	Body string `json:"body"`
}

type markReadResponse struct {
	MarkedRead int `json:"marked_read"`
}

func (h *HTTP) listThreads(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	threads, err := h.svc.Threads(r.Context(), userID)
	if err != nil {
		h.serverError(w, err, "list threads")
		return
	}
	if threads == nil {
		threads = []*domain.ThreadPreview{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (h *HTTP) createThread(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	thread, err := h.svc.CreateThread(r.Context(), userID, role, req.DoctorID, req.PatientID)
	if err != nil {
		h.mapError(w, err, "create thread")
		return
	}
	writeJSON(w, http.StatusCreated, thread)
}

func (h *HTTP) listMessages(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	threadID := r.PathValue("id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "before must be an RFC 3339 timestamp", http.StatusBadRequest)
			return
		}
		before = t
	}
	msgs, err := h.svc.History(r.Context(), userID, role, threadID, limit, before)
	if err != nil {
		h.mapError(w, err, "list messages")
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *HTTP) sendMessage(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	threadID := r.PathValue("id")
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	msg, err := h.svc.Send(r.Context(), userID, role, threadID, req.Body)
	if err != nil {
		h.mapError(w, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *HTTP) markRead(w http.ResponseWriter, r *http.Request) {
	userID, role, ok := identity(r)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	threadID := r.PathValue("id")
	n, err := h.svc.MarkRead(r.Context(), userID, role, threadID)
	if err != nil {
		h.mapError(w, err, "mark read")
		return
	}
	writeJSON(w, http.StatusOK, markReadResponse{MarkedRead: n})
}

// mapError translates service sentinel errors to HTTP status codes.
func (h *HTTP) mapError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, service.ErrThreadNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrEmptyBody),
		errors.Is(err, service.ErrBodyTooLong),
		errors.Is(err, service.ErrInvalidPairing):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.serverError(w, err, op)
	}
}

func (h *HTTP) serverError(w http.ResponseWriter, err error, op string) {
	h.logger.Error().Err(err).Str("op", op).Msg("request failed")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func identity(r *http.Request) (userID, role string, ok bool) {
	userID, ok = middleware.GetUserID(r.Context())
	if !ok {
		return "", "", false
	}
	role, ok = middleware.GetRole(r.Context())
	if !ok {
		return "", "", false
	}
	return userID, role, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
