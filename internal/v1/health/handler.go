// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
)

// HubStatus is the view of the socket hub the readiness probe reports.
type HubStatus interface {
	ConnectionCount() int
	RoomCount() int
	Closed() bool
}

// Handler manages the health check endpoints.
type Handler struct {
	redis *redis.Client
	hub   HubStatus
}

// NewHandler creates a health check handler. redis may be nil when the
// server runs with the in-memory limiter store.
func NewHandler(redisClient *redis.Client, hub HubStatus) *Handler {
	return &Handler{redis: redisClient, hub: hub}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Stats     ReadinessStats    `json:"stats"`
	Timestamp string            `json:"timestamp"`
}

// ReadinessStats carries the hub counters for dashboards and debugging.
type ReadinessStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Liveness handles the liveness probe endpoint.
// GET /healthz
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /readyz
// Returns 200 only while the server accepts new connections and its
// dependencies answer; 503 otherwise, including during shutdown drain.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	serverStatus := "accepting"
	if h.hub != nil && h.hub.Closed() {
		serverStatus = "draining"
		allHealthy = false
	}
	checks["server"] = serverStatus

	redisStatus := h.checkRedis(ctx)
	checks["redis"] = redisStatus
	if redisStatus != "healthy" {
		allHealthy = false
	}

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	var stats ReadinessStats
	if h.hub != nil {
		stats = ReadinessStats{
			Connections: h.hub.ConnectionCount(),
			Rooms:       h.hub.RoomCount(),
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Stats:     stats,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRedis verifies Redis connectivity using the PING command. A nil
// client means the server runs on the in-memory store, which never fails.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.redis == nil {
		return "healthy"
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
