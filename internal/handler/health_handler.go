package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imguard/internal/service"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	usage  service.UsageService
	source string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(usage service.UsageService, source string) *HealthHandler {
	return &HealthHandler{usage: usage, source: source}
}

// Liveness handles GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Readiness handles GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.usage.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status: "unavailable",
			Source: h.source,
			Error:  "usage source not reachable",
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Source: h.source})
}
