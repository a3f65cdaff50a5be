package middleware

import (
	"net/http"
	"strings"

	"clinic-messaging/backend/internal/revocation"
	"clinic-messaging/backend/internal/security"
)

const bearerPrefix = "bearer "

// Auth validates the Bearer access token on every request and sets the
// caller's identity in context. Revoked tokens are rejected even when
// otherwise valid. Requests without a usable token get 401.
func Auth(tokens *security.TokenProvider, revoked revocation.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
				return
			}
			info, err := tokens.ValidateAccess(token)
			if err != nil {
				http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
				return
			}
			if revoked.IsRevoked(r.Context(), info.JTI) {
				http.Error(w, "token revoked", http.StatusUnauthorized)
				return
			}
			ctx := WithIdentity(r.Context(), info.UserID, info.Role, info.JTI)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header,
// or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
