package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/models"
)

// Status returns the store state and delivery counters.
// GET /admin/status
func (h *Handler) Status(c *fiber.Ctx) error {
	resp := models.StatusResponse{Store: h.deps.Store.Status()}
	if h.deps.Hub != nil {
		stats := h.deps.Hub.Stats()
		resp.Delivery = &stats
		resp.Subscribers = h.deps.Hub.Subscribers()
	}
	if h.deps.Latest != nil {
		resp.Sensors = h.deps.Latest.Len()
	}
	return c.JSON(resp)
}

// Archives lists the archive directory.
// GET /admin/archives
func (h *Handler) Archives(c *fiber.Ctx) error {
	archives, err := h.deps.Store.Archives()
	if err != nil {
		return err
	}
	return c.JSON(models.ArchiveListResponse{Archives: archives, Count: len(archives)})
}

// TriggerFlush writes buffered readings to the active file.
// POST /admin/flush
func (h *Handler) TriggerFlush(c *fiber.Ctx) error {
	h.logger.Info("Manual flush triggered via API")
	if err := h.deps.Store.Flush(); err != nil {
		return err
	}
	return c.JSON(models.ActionResponse{Status: "ok", Message: "buffer flushed", Store: h.deps.Store.Status()})
}

// TriggerRotate closes, archives and replaces the active file.
// POST /admin/rotate
func (h *Handler) TriggerRotate(c *fiber.Ctx) error {
	h.logger.Info("Manual rotation triggered via API")
	if err := h.deps.Store.Rotate(); err != nil {
		return err
	}
	return c.JSON(models.ActionResponse{Status: "ok", Message: "rotated", Store: h.deps.Store.Status()})
}

// TriggerSweep runs a retention pass over the archives.
// POST /admin/sweep
func (h *Handler) TriggerSweep(c *fiber.Ctx) error {
	h.logger.Info("Manual retention sweep triggered via API")
	return c.JSON(models.NewSweepResponse(h.deps.Store.Sweep()))
}
