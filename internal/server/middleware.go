package server

import (
	"github.com/labstack/echo/v4"

	"github.com/F1Justin/Chat-Message-Danmaku-System/internal/logging"
)

// requestIDMiddleware tags every request with a short random ID. The ID
// travels in the request context so slog lines emitted by handlers carry it.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := logging.NewRequestID()
			ctx := logging.WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("X-Request-ID", id)
			return next(c)
		}
	}
}
