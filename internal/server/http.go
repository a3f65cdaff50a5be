// Package server assembles the HTTP surface: public auth and health routes,
// Bearer-protected messaging routes, and the WebSocket endpoint.
package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	healthhandler "clinic-messaging/backend/internal/health/handler"
	identityhandler "clinic-messaging/backend/internal/identity/handler"
	messaginghandler "clinic-messaging/backend/internal/messaging/handler"
	"clinic-messaging/backend/internal/realtime"
	"clinic-messaging/backend/internal/revocation"
	"clinic-messaging/backend/internal/security"
	"clinic-messaging/backend/internal/server/middleware"
)

// Deps holds the handlers and services the HTTP server routes to.
type Deps struct {
	// Auth serves the public /api/auth routes.
	Auth *identityhandler.HTTP
	// Messaging serves the /api/threads routes behind Bearer auth.
	Messaging *messaginghandler.HTTP
	// Realtime serves GET /ws. It does its own token handling because
	// browser WebSocket clients cannot set an Authorization header.
	Realtime *realtime.Handler
	// Health serves GET /healthz.
	Health *healthhandler.HTTP
	// Tokens and Revoked back the Bearer auth middleware.
	Tokens  *security.TokenProvider
	Revoked revocation.Store
}

// NewHandler builds the routing tree: request logging and OTel tracing wrap
// everything; Bearer auth wraps only the messaging API.
func NewHandler(deps Deps, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	if deps.Health != nil {
		deps.Health.Register(mux)
	}
	if deps.Auth != nil {
		deps.Auth.Register(mux)
	}
	if deps.Messaging != nil {
		protected := http.NewServeMux()
		deps.Messaging.Register(protected)
		authed := middleware.Auth(deps.Tokens, deps.Revoked)(protected)
		mux.Handle("/api/threads", authed)
		mux.Handle("/api/threads/", authed)
	}
	if deps.Realtime != nil {
		mux.Handle("GET /ws", deps.Realtime)
	}

	var handler http.Handler = mux
	handler = middleware.RequestLog(logger)(handler)
	handler = otelhttp.NewHandler(handler, "http.server")
	return handler
}

// NewServer returns an http.Server for the handler with production timeouts.
// ReadHeaderTimeout guards against slowloris; there is no WriteTimeout because
// WebSocket connections are long-lived.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
