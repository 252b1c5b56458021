package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/models"
)

// MaxBatchSize limits the number of readings in one batch request.
const MaxBatchSize = 10000

// WriteReading handles a single reading write
// POST /v1/readings
func (h *Handler) WriteReading(c *fiber.Ctx) error {
	var body models.WriteReadingRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_JSON",
				Message: "Failed to parse request body",
				Details: map[string]interface{}{"error": err.Error()},
			},
		})
	}

	e, err := body.ToEntry(h.now())
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := h.deliver(c, e); err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(models.WriteResponse{
		Accepted:  true,
		RequestID: uuid.New().String(),
	})
}

// WriteBatch handles batch writes. Invalid readings are reported by index and do not
// prevent the valid ones from being written.
// POST /v1/readings/batch
func (h *Handler) WriteBatch(c *fiber.Ctx) error {
	var body models.WriteBatchRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    "INVALID_JSON",
				Message: "Failed to parse request body",
				Details: map[string]interface{}{"error": err.Error()},
			},
		})
	}
	if len(body.Readings) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "'readings' must contain at least one reading")
	}
	if len(body.Readings) > MaxBatchSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge,
			"batch exceeds "+strconv.Itoa(MaxBatchSize)+" readings")
	}

	resp := models.WriteBatchResponse{RequestID: uuid.New().String()}
	now := h.now()
	for i, r := range body.Readings {
		e, err := r.ToEntry(now)
		if err == nil {
			err = h.deliver(c, e)
		}
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[strconv.Itoa(i)] = err.Error()
			resp.Rejected++
			continue
		}
		resp.Accepted++
	}

	h.logger.Debug("Batch written", "accepted", resp.Accepted, "rejected", resp.Rejected)
	status := fiber.StatusAccepted
	if resp.Accepted == 0 {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(resp)
}

// deliver hands e to the sink. Only store failures and unstorable readings reject the
// write; a failing
// forwarder or collector link is logged by the hub and the reading still counts.
func (h *Handler) deliver(c *fiber.Ctx, e logstore.LogEntry) error {
	err := h.deps.Sink.HandleReading(c.UserContext(), e)
	if err == nil {
		return nil
	}
	if errors.Is(err, logstore.ErrNotStarted) || errors.Is(err, logstore.ErrIO) ||
		errors.Is(err, logstore.ErrInvalidEntry) {
		return err
	}
	h.logger.Debug("Reading accepted with delivery errors", "sensor_id", e.SensorID, "error", err)
	return nil
}
