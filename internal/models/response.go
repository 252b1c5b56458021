package models

import (
	"time"

	"github.com/soltixdb/sensorlog/internal/fanout"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state,omitempty"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ReadingView is one reading as returned by the API.
type ReadingView struct {
	Timestamp string  `json:"timestamp"`
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
}

// NewReadingView converts a log entry.
func NewReadingView(e logstore.LogEntry) ReadingView {
	return ReadingView{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		SensorID:  e.SensorID,
		Value:     e.Value,
		Unit:      e.Unit,
	}
}

// ReadingsResponse represents a buffered reading query response
type ReadingsResponse struct {
	Start     string        `json:"start,omitempty"`
	End       string        `json:"end,omitempty"`
	SensorID  string        `json:"sensor_id,omitempty"`
	Readings  []ReadingView `json:"readings"`
	Count     int           `json:"count"`
	Truncated bool          `json:"truncated"`
}

// WriteResponse represents write response
type WriteResponse struct {
	Accepted  bool   `json:"accepted"`
	RequestID string `json:"request_id"`
}

// WriteBatchResponse represents batch write response
type WriteBatchResponse struct {
	Accepted  int               `json:"accepted"`
	Rejected  int               `json:"rejected"`
	Errors    map[string]string `json:"errors,omitempty"` // index -> reason
	RequestID string            `json:"request_id"`
}

// SweepResponse reports a retention pass.
type SweepResponse struct {
	Cutoff  string   `json:"cutoff"`
	Deleted []string `json:"deleted"`
	Kept    int      `json:"kept"`
	Errors  []string `json:"errors,omitempty"`
}

// NewSweepResponse converts a sweep result.
func NewSweepResponse(r logstore.SweepResult) SweepResponse {
	resp := SweepResponse{
		Cutoff:  r.Cutoff.Format(time.RFC3339),
		Deleted: r.Deleted,
		Kept:    r.Kept,
	}
	if resp.Deleted == nil {
		resp.Deleted = []string{}
	}
	for _, err := range r.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}
	return resp
}

// ArchiveListResponse represents list archives response
type ArchiveListResponse struct {
	Archives []logstore.ArchiveFile `json:"archives"`
	Count    int                    `json:"count"`
}

// ActionResponse acknowledges an admin action.
type ActionResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Store   logstore.Status `json:"store"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StatusResponse represents the admin status response
type StatusResponse struct {
	Store       logstore.Status `json:"store"`
	Delivery    *fanout.Stats   `json:"delivery,omitempty"`
	Subscribers []string        `json:"subscribers,omitempty"`
	Sensors     int             `json:"sensors"`
}
