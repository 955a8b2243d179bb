package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
)

// RequestLogger logs one line per request. statusOf resolves the status of an
// error that the app's error handler has not rendered yet.
func RequestLogger(logger *slog.Logger, statusOf func(error) int) fiber.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Fiber reuses context objects, capture before the handler runs
		method := c.Method()
		path := c.Path()
		ip := c.IP()

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if statusOf != nil {
				status = statusOf(err)
			}
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []any{
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", ip,
			"request_id", GetRequestID(c),
		}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		logger.Log(c.Context(), level, "http request", attrs...)
		return err
	}
}
