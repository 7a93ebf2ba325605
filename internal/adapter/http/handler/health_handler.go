package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// VectorHealthChecker reports whether the vector index answers.
type VectorHealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	pool        *pgxpool.Pool
	redisClient *redis.Client
	vectors     VectorHealthChecker
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(pool *pgxpool.Pool, redisClient *redis.Client, vectors VectorHealthChecker) *HealthHandler {
	return &HealthHandler{
		pool:        pool,
		redisClient: redisClient,
		vectors:     vectors,
	}
}

// Liveness returns 200 if the service is alive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness returns 200 once every dependency answers. The vector index is
// advisory and only degrades the report.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "postgres unhealthy", err.Error())
		return
	}
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "redis unhealthy", err.Error())
		return
	}

	status := map[string]string{"status": "ready", "vectors": "ok"}
	if h.vectors != nil && !h.vectors.Healthy(ctx) {
		status["vectors"] = "degraded"
	}
	writeJSON(w, http.StatusOK, status)
}
