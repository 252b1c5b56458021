package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/soltixdb/sensorlog/internal/logstore"
)

// WriteReadingRequest represents a single reading write request. It uses the same
// field names as the collector wire format.
type WriteReadingRequest struct {
	SensorID  string   `json:"sensor_id"`
	Timestamp string   `json:"timestamp,omitempty"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
}

// WriteBatchRequest represents a batch write request
type WriteBatchRequest struct {
	Readings []WriteReadingRequest `json:"readings"`
}

// ToEntry validates the request and converts it. A missing timestamp becomes now.
func (r WriteReadingRequest) ToEntry(now time.Time) (logstore.LogEntry, error) {
	id := strings.TrimSpace(r.SensorID)
	if id == "" {
		return logstore.LogEntry{}, fmt.Errorf("'sensor_id' is required")
	}
	if r.Value == nil {
		return logstore.LogEntry{}, fmt.Errorf("'value' is required")
	}

	ts := now
	if r.Timestamp != "" {
		t, err := logstore.ParseTimestamp(r.Timestamp)
		if err != nil {
			return logstore.LogEntry{}, fmt.Errorf("'timestamp' is not an ISO-8601 timestamp: %s", r.Timestamp)
		}
		ts = t
	}
	e := logstore.LogEntry{Timestamp: ts, SensorID: id, Value: *r.Value, Unit: r.Unit}
	if err := e.Validate(); err != nil {
		return logstore.LogEntry{}, err
	}
	return e, nil
}
