// Package collector moves readings between processes as line-delimited JSON over TCP.
// Every reading is answered with a one-line JSON acknowledgement.
package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Acknowledgement statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Ack is the server's reply to one reading.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// AckError is returned by the client when the server rejected a reading.
type AckError struct {
	Message string
}

func (e *AckError) Error() string {
	return "reading rejected by server: " + e.Message
}

// ErrInvalidReading reports a line that does not decode to a usable reading.
var ErrInvalidReading = errors.New("invalid reading")

// wireReading is the JSON object sent for each reading. The timestamp is kept as a
// string so zone-less ISO 8601 values from other senders are accepted.
type wireReading struct {
	SensorID  string   `json:"sensor_id"`
	Timestamp string   `json:"timestamp"`
	Value     *float64 `json:"value"`
	Unit      string   `json:"unit"`
}

func encodeReading(e logstore.LogEntry) ([]byte, error) {
	value := e.Value
	data, err := json.Marshal(wireReading{
		SensorID:  e.SensorID,
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Value:     &value,
		Unit:      e.Unit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode reading for %s: %w", e.SensorID, err)
	}
	return append(data, '\n'), nil
}

// decodeReading parses one line. A missing timestamp is filled with now.
func decodeReading(line []byte, now time.Time) (logstore.LogEntry, error) {
	var w wireReading
	if err := json.Unmarshal(line, &w); err != nil {
		return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	if w.SensorID == "" {
		return logstore.LogEntry{}, fmt.Errorf("%w: sensor_id is required", ErrInvalidReading)
	}
	if w.Value == nil || math.IsNaN(*w.Value) {
		return logstore.LogEntry{}, fmt.Errorf("%w: value is required", ErrInvalidReading)
	}

	ts := now
	if w.Timestamp != "" {
		parsed, err := logstore.ParseTimestamp(w.Timestamp)
		if err != nil {
			return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
		}
		ts = parsed
	}

	e := logstore.LogEntry{
		Timestamp: ts,
		SensorID:  w.SensorID,
		Value:     *w.Value,
		Unit:      w.Unit,
	}
	if err := e.Validate(); err != nil {
		return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	return e, nil
}

func encodeAck(err error) []byte {
	ack := Ack{Status: StatusOK}
	if err != nil {
		ack = Ack{Status: StatusError, Message: err.Error()}
	}
	data, _ := json.Marshal(ack)
	return append(data, '\n')
}
