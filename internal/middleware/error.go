package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/models"
)

// ErrorHandler renders handler errors as models.ErrorResponse. Store error kinds map
// to their own status codes; anything else is a 500.
func ErrorHandler(logger *logging.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code, errCode, message := classify(err)

		if code >= fiber.StatusInternalServerError {
			logger.Error("Request error",
				"path", c.Path(),
				"method", c.Method(),
				"status", code,
				"error", err,
			)
		} else {
			logger.Debug("Request rejected", "path", c.Path(), "status", code, "error", err)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    errCode,
				Message: message,
			},
		})
	}
}

func classify(err error) (status int, code, message string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, httpCode(fe.Code), fe.Message
	case errors.Is(err, logstore.ErrNotStarted):
		return fiber.StatusServiceUnavailable, "STORE_STOPPED", err.Error()
	case errors.Is(err, logstore.ErrInvalidEntry):
		return fiber.StatusBadRequest, "INVALID_READING", err.Error()
	case errors.Is(err, logstore.ErrArchive):
		return fiber.StatusInternalServerError, "ARCHIVE_FAILED", err.Error()
	case errors.Is(err, logstore.ErrIO):
		return fiber.StatusInternalServerError, "IO_ERROR", err.Error()
	case errors.Is(err, logstore.ErrConfig):
		return fiber.StatusBadRequest, "INVALID_CONFIG", err.Error()
	default:
		return fiber.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error"
	}
}

func httpCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "INVALID_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return "ERROR"
	}
}
