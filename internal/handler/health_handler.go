package handler

import (
	"net/http"

	"tenant-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthHandler reports service and database health
type HealthHandler struct {
	service string
	ping    func() error
}

// NewHealthHandler creates a health handler; ping checks the database
func NewHealthHandler(service string, ping func() error) *HealthHandler {
	return &HealthHandler{service: service, ping: ping}
}

// HealthCheck handles the health check endpoint
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	if h.ping != nil {
		if err := h.ping(); err != nil {
			logger.FromContext(c).Warn("Database ping failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, echo.Map{
				"status":   "unhealthy",
				"service":  h.service,
				"database": "unreachable",
			})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":   "healthy",
		"service":  h.service,
		"database": "ok",
	})
}
