package models

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Output formats for reading queries.
const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
)

// MaxQueryLimit caps the number of readings a buffered JSON response may hold.
const MaxQueryLimit = 100000

// ReadingsQuery represents the parsed reading query input
type ReadingsQuery struct {
	Start    string
	End      string
	SensorID string
	Format   string
	Limit    int

	StartParsed time.Time
	EndParsed   time.Time
}

// NewReadingsQuery creates a ReadingsQuery, applying the json format default.
func NewReadingsQuery(start, end, sensorID, format string, limit int) *ReadingsQuery {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	return &ReadingsQuery{
		Start:    strings.TrimSpace(start),
		End:      strings.TrimSpace(end),
		SensorID: strings.TrimSpace(sensorID),
		Format:   format,
		Limit:    limit,
	}
}

// Validate parses the time bounds. Both bounds are optional; a missing bound leaves
// that side of the range open. Timestamps without a zone are read as local time.
func (q *ReadingsQuery) Validate() error {
	if q.Start != "" {
		t, err := logstore.ParseTimestamp(q.Start)
		if err != nil {
			return &fiber.Error{
				Code:    fiber.StatusBadRequest,
				Message: "start must be an ISO-8601 timestamp (e.g., 2006-01-02T15:04:05Z)",
			}
		}
		q.StartParsed = t
	}

	if q.End != "" {
		t, err := logstore.ParseTimestamp(q.End)
		if err != nil {
			return &fiber.Error{
				Code:    fiber.StatusBadRequest,
				Message: "end must be an ISO-8601 timestamp (e.g., 2006-01-02T15:04:05Z)",
			}
		}
		q.EndParsed = t
	}

	if !q.StartParsed.IsZero() && !q.EndParsed.IsZero() && q.EndParsed.Before(q.StartParsed) {
		return &fiber.Error{
			Code:    fiber.StatusBadRequest,
			Message: "end must not be before start",
		}
	}

	switch q.Format {
	case FormatJSON, FormatNDJSON, FormatCSV:
	default:
		return &fiber.Error{
			Code:    fiber.StatusBadRequest,
			Message: "format must be one of json, ndjson, csv",
		}
	}

	if q.Limit < 0 {
		return &fiber.Error{
			Code:    fiber.StatusBadRequest,
			Message: "limit must be a positive integer",
		}
	}
	if q.Format == FormatJSON && (q.Limit == 0 || q.Limit > MaxQueryLimit) {
		q.Limit = MaxQueryLimit
	}

	return nil
}

// Filter returns the store filter for the query.
func (q *ReadingsQuery) Filter() logstore.Filter {
	return logstore.Filter{Start: q.StartParsed, End: q.EndParsed, SensorID: q.SensorID}
}
