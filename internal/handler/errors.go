package handler

import (
	"errors"
	"net/http"

	"tenant-service/internal/model"
	"tenant-service/pkg/logger"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// respondError maps domain errors onto status codes without leaking causes
func respondError(c echo.Context, err error) error {
	log := logger.FromContext(c)

	switch {
	case errors.Is(err, model.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrProvisioningConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "could not allocate a unique company identifier, try a different name"})
	case errors.Is(err, model.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, model.ErrAuthFailure):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, model.ErrProvisioningFailed):
		log.Error("Registration failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	default:
		log.Error("Request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
