package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/cache"
	"github.com/soltixdb/sensorlog/internal/models"
)

// LatestReadings returns the newest reading of every sensor seen since startup.
// GET /v1/sensors/latest
func (h *Handler) LatestReadings(c *fiber.Ctx) error {
	if h.deps.Latest == nil {
		return fiber.NewError(fiber.StatusNotFound, "latest-value cache is disabled")
	}
	snap := h.deps.Latest.Snapshot()
	views := make([]models.ReadingView, 0, len(snap))
	for _, e := range snap {
		views = append(views, models.NewReadingView(e))
	}
	return c.JSON(fiber.Map{"readings": views, "count": len(views)})
}

// LatestReading returns the newest reading of one sensor.
// GET /v1/sensors/:sensor_id/latest
func (h *Handler) LatestReading(c *fiber.Ctx) error {
	if h.deps.Latest == nil {
		return fiber.NewError(fiber.StatusNotFound, "latest-value cache is disabled")
	}
	e, ok := h.deps.Latest.Get(c.Params("sensor_id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "no readings for sensor "+c.Params("sensor_id"))
	}
	return c.JSON(models.NewReadingView(e))
}

// SensorStats returns running statistics of every sensor seen since startup.
// GET /v1/sensors/stats
func (h *Handler) SensorStats(c *fiber.Ctx) error {
	if h.deps.Stats == nil {
		return fiber.NewError(fiber.StatusNotFound, "sensor statistics are disabled")
	}
	snap := h.deps.Stats.Snapshot()
	if snap == nil {
		snap = []cache.SensorStats{}
	}
	return c.JSON(fiber.Map{"sensors": snap, "count": len(snap)})
}
