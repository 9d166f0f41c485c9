package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatherly/server/internal/api/respond"
)

type HealthHandler struct {
	pool    *pgxpool.Pool
	version string
	commit  string
}

func NewHealthHandler(pool *pgxpool.Pool, version, commit string) *HealthHandler {
	return &HealthHandler{pool: pool, version: version, commit: commit}
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Healthz reports liveness only; it never touches dependencies.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   h.version,
		GitCommit: h.commit,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz reports readiness: the database must answer a ping.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := healthResponse{
		Status:    "ok",
		Version:   h.version,
		GitCommit: h.commit,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.pool == nil || h.pool.Ping(ctx) != nil {
		status = http.StatusServiceUnavailable
		body.Status = "database unavailable"
	}
	respond.JSON(w, status, body)
}
