package handlers

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/models"
)

// flushEvery bounds how many streamed rows may sit in the response buffer.
const flushEvery = 500

// Readings handles reading queries across the active file and all archives.
// GET /v1/readings?start=xxx&end=xxx&sensor_id=xxx&format=json|ndjson|csv&limit=xxx
func (h *Handler) Readings(c *fiber.Ctx) error {
	limitStr := c.Query("limit", "0")
	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	}

	q := models.NewReadingsQuery(c.Query("start"), c.Query("end"), c.Query("sensor_id"), c.Query("format"), limit)
	if err := q.Validate(); err != nil {
		return err
	}

	switch q.Format {
	case models.FormatNDJSON:
		return h.streamReadings(c, q, "application/x-ndjson", h.writeNDJSON)
	case models.FormatCSV:
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="readings.csv"`)
		return h.streamReadings(c, q, "text/csv; charset=utf-8", h.writeCSV)
	default:
		return h.bufferedReadings(c, q)
	}
}

func (h *Handler) bufferedReadings(c *fiber.Ctx, q *models.ReadingsQuery) error {
	resp := models.ReadingsResponse{
		Start:    q.Start,
		End:      q.End,
		SensorID: q.SensorID,
		Readings: []models.ReadingView{},
	}

	for e, err := range h.deps.Store.Query(c.UserContext(), q.Filter()) {
		if err != nil {
			h.logger.Warn("Query source failed", "error", err)
			continue
		}
		if len(resp.Readings) >= q.Limit {
			resp.Truncated = true
			break
		}
		resp.Readings = append(resp.Readings, models.NewReadingView(e))
	}
	if err := c.UserContext().Err(); err != nil {
		return fiber.NewError(fiber.StatusRequestTimeout, "query cancelled")
	}

	resp.Count = len(resp.Readings)
	return c.JSON(resp)
}

type rowWriter func(w *bufio.Writer, q *models.ReadingsQuery, rows func(yield func(logstore.LogEntry) bool)) error

// streamReadings writes the query result after the handler returns, so the body
// never holds more than flushEvery rows in memory.
func (h *Handler) streamReadings(c *fiber.Ctx, q *models.ReadingsQuery, contentType string, write rowWriter) error {
	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	store := h.deps.Store
	logger := h.logger
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		// The fiber context is released once the handler returns.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count := 0
		rows := func(yield func(logstore.LogEntry) bool) {
			for e, err := range store.Query(ctx, q.Filter()) {
				if err != nil {
					logger.Warn("Query source failed", "error", err)
					continue
				}
				if q.Limit > 0 && count >= q.Limit {
					return
				}
				count++
				if !yield(e) {
					return
				}
			}
		}
		if err := write(w, q, rows); err != nil {
			logger.Debug("Streaming response aborted", "rows", count, "error", err)
			return
		}
		_ = w.Flush()
	})
	return nil
}

func (h *Handler) writeNDJSON(w *bufio.Writer, _ *models.ReadingsQuery, rows func(func(logstore.LogEntry) bool)) error {
	enc := json.NewEncoder(w)
	var err error
	n := 0
	rows(func(e logstore.LogEntry) bool {
		if err = enc.Encode(models.NewReadingView(e)); err != nil {
			return false
		}
		n++
		if n%flushEvery == 0 {
			err = w.Flush()
		}
		return err == nil
	})
	return err
}

func (h *Handler) writeCSV(w *bufio.Writer, _ *models.ReadingsQuery, rows func(func(logstore.LogEntry) bool)) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logstore.Header); err != nil {
		return err
	}
	var err error
	n := 0
	rows(func(e logstore.LogEntry) bool {
		if err = cw.Write(e.Record()); err != nil {
			return false
		}
		n++
		if n%flushEvery == 0 {
			cw.Flush()
			if err = cw.Error(); err == nil {
				err = w.Flush()
			}
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
