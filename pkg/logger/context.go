package logger

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const RequestIDKey = "X-Request-ID"

const loggerKey = "logger"

type ctxKey struct{}

// FromContext retrieves the request logger from echo.Context
func FromContext(c echo.Context) *zap.Logger {
	if logger, ok := c.Get(loggerKey).(*zap.Logger); ok {
		return logger
	}

	requestID, ok := c.Get(RequestIDKey).(string)
	if !ok {
		requestID = c.Request().Header.Get(RequestIDKey)
		if requestID == "" {
			requestID = "unknown"
		}
	}

	return GetLogger().With(zap.String("request_id", requestID))
}

// WithContext adds the logger to a context.Context
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromCtx retrieves the logger carried by a context.Context, falling back to the global one
func FromCtx(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
		return logger
	}
	return GetLogger()
}
