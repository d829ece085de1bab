package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"imguard/internal/service"
)

// UsageHandler reports current free-tier usage.
type UsageHandler struct {
	usage service.UsageService
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usage service.UsageService) *UsageHandler {
	return &UsageHandler{usage: usage}
}

// Usage handles GET /usage. It answers 200 even when the usage source is
// down; the report then carries a fallback flag and a warning.
// @Summary Current usage
// @Tags usage
// @Produce json
// @Success 200 {object} service.UsageReport
// @Router /usage [get]
func (h *UsageHandler) Usage(c *gin.Context) {
	c.JSON(http.StatusOK, h.usage.Report(c.Request.Context()))
}
