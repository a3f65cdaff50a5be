// Package handler serves readiness and liveness probes.
package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// HTTP serves /healthz. Liveness is implicit in any response; readiness
// requires both Postgres and Redis to answer a ping.
type HTTP struct {
	db  *sql.DB
	rdb *redis.Client
}

// NewHTTP returns a health handler. Either dependency may be nil and is then
// skipped in the readiness check.
func NewHTTP(db *sql.DB, rdb *redis.Client) *HTTP {
	return &HTTP{db: db, rdb: rdb}
}

// Register adds the health route to mux.
func (h *HTTP) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HTTP) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: map[string]string{}}
	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["postgres"] = err.Error()
		} else {
			resp.Checks["postgres"] = "ok"
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			resp.Status = "degraded"
			resp.Checks["redis"] = err.Error()
		} else {
			resp.Checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
