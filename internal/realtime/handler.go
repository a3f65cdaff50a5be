package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"clinic-messaging/backend/internal/revocation"
	"clinic-messaging/backend/internal/security"
	"clinic-messaging/backend/internal/telemetry"
	"clinic-messaging/backend/internal/telemetry/domain"
)

// TokenValidator validates a bearer token and returns the decoded identity.
// Implemented by security.TokenProvider.
type TokenValidator interface {
	ValidateAccess(token string) (*security.TokenInfo, error)
}

// HandlerConfig carries the connection-level tunables.
type HandlerConfig struct {
	// HeartbeatInterval is the server ping period; 0 means 30s.
	HeartbeatInterval time.Duration
	// IdleWait is the stale-connection deadline; 0 means 2x the heartbeat.
	IdleWait time.Duration
	// SendBuffer is the per-connection outbound queue length; 0 means 64.
	SendBuffer int
}

// Handler upgrades authenticated HTTP requests to WebSocket connections and
// admits them into the hub. The bearer token is checked cryptographically and
// against the revocation store before the upgrade.
type Handler struct {
	hub         *Hub
	tokens      TokenValidator
	revocations revocation.Store
	authz       ThreadAuthorizer
	upgrader    websocket.Upgrader
	cfg         HandlerConfig
	emitter     telemetry.EventEmitter
	logger      zerolog.Logger
}

// NewHandler wires the WebSocket endpoint.
func NewHandler(hub *Hub, tokens TokenValidator, revocations revocation.Store, authz ThreadAuthorizer, cfg HandlerConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:         hub,
		tokens:      tokens,
		revocations: revocations,
		authz:       authz,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// The bearer token, not the Origin header, is the access control;
				// browser clients connect from the clinic web app's own origin.
				return true
			},
		},
		cfg:    cfg,
		logger: logger.With().Str("component", "realtime.Handler").Logger(),
	}
}

// UseEmitter turns on connection lifecycle security events.
func (h *Handler) UseEmitter(emitter telemetry.EventEmitter) {
	h.emitter = emitter
}

// ServeHTTP authenticates the handshake, upgrades, and services the
// connection until it ends. Handshake rejection is the only user-fatal path
// in the realtime layer; everything after the upgrade is absorbed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	info, err := h.tokens.ValidateAccess(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if h.revocations != nil && h.revocations.IsRevoked(r.Context(), info.JTI) {
		http.Error(w, "token revoked", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h.hub, conn, info.UserID, info.Role, h.authz,
		h.cfg.HeartbeatInterval, h.cfg.IdleWait, h.cfg.SendBuffer, h.logger)
	if err := h.hub.Register(client); err != nil {
		h.logger.Warn().Str("user", info.UserID).Msg("connection cap reached; refusing connection")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	h.logger.Info().Str("user", info.UserID).Msg("user connected")
	telemetry.EmitAsync(h.emitter, r.Context(), telemetry.NewEvent(domain.EventWSConnected, info.UserID))
	client.run(r.Context())
	h.logger.Info().Str("user", info.UserID).Msg("user disconnected")
	telemetry.EmitAsync(h.emitter, r.Context(), telemetry.NewEvent(domain.EventWSDisconnected, info.UserID))
}

// bearerToken extracts the token from the Authorization header or, because
// browser WebSocket clients cannot set headers, the token query parameter.
func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
