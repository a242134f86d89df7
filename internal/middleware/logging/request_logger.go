package logging

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	applog "github.com/launchkit/launchkit/internal/logging"
)

// RequestLogger logs one line per request and stores the request-scoped
// logger in the context so handlers can pick it up.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			l := base.With(
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
			)
			c.SetRequest(req.WithContext(applog.IntoContext(req.Context(), l)))

			// Resolve the error here so the logged status is the real one.
			if err := next(c); err != nil {
				c.Error(err)
			}

			l.Info("request",
				"status", c.Response().Status,
				"remote", c.RealIP(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}
	}
}
