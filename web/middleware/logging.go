package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/chainpalette/art-auction/artauction/apperror"
)

// Logging logs HTTP requests in a structured format.
func Logging() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		statusCode := c.Response().StatusCode()
		logLevel := slog.LevelInfo
		if statusCode >= 400 && statusCode < 500 {
			logLevel = slog.LevelWarn
		} else if statusCode >= 500 {
			logLevel = slog.LevelError
		}

		logger := slog.With(
			slog.String("type", "http"),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
			slog.Int("size", len(c.Response().Body())),
		)

		if err != nil {
			logger = logger.With(slog.String("error", err.Error()))
		}

		message := "HTTP request processed"
		if err != nil {
			message = "HTTP request failed"
		}
		logger.Log(c.Context(), logLevel, message)

		return err
	}
}

// ErrorHandler maps the error taxonomy to response codes: validation 400,
// not found 404, storage 502, unavailable 503, anything else 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := apperror.HTTPStatus(err)

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
