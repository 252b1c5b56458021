package logstore

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Sentinel is written as the last line of a data file on clean shutdown.
	Sentinel = "----- END OF SESSION -----"

	sentinelPrefix = "-----"
	dataFileExt    = ".csv"
	archiveExt     = ".zip"
)

// Header is the first row of every data file.
var Header = []string{"TIMESTAMP", "SENSOR_ID", "VALUE", "UNIT"}

// timestampLayouts are tried in order when parsing a row. Rows are always written with
// the first one; the zone-less layout accepts files produced by older writers.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// LogEntry is a single sensor reading.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	SensorID  string    `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// Record returns the CSV fields of the entry.
func (e LogEntry) Record() []string {
	return []string{
		e.Timestamp.Format(time.RFC3339Nano),
		e.SensorID,
		strconv.FormatFloat(e.Value, 'f', -1, 64),
		e.Unit,
	}
}

// Validate reports whether e can be written as one physical line. Rows are read back
// line by line, so text fields must not contain line breaks.
func (e LogEntry) Validate() error {
	if strings.ContainsAny(e.SensorID, "\r\n") {
		return newError(ErrInvalidEntry, "validate", "", fmt.Errorf("sensor_id %q contains a line break", e.SensorID))
	}
	if strings.ContainsAny(e.Unit, "\r\n") {
		return newError(ErrInvalidEntry, "validate", "", fmt.Errorf("unit %q contains a line break", e.Unit))
	}
	return nil
}

// encodeRows renders entries as CSV rows, one line each, in the given order.
func encodeRows(entries []LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, e := range entries {
		if err := w.Write(e.Record()); err != nil {
			return nil, fmt.Errorf("failed to encode row for %s: %w", e.SensorID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeHeader() []byte {
	return []byte(strings.Join(Header, ",") + "\n")
}

// isSentinel reports whether a raw line is a session marker.
func isSentinel(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), sentinelPrefix)
}

// parseLine decodes one raw data line. The caller has already filtered blank, header
// and sentinel lines.
func parseLine(line string) (LogEntry, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return parseRecord(record)
}

func parseRecord(record []string) (LogEntry, error) {
	if len(record) != len(Header) {
		return LogEntry{}, fmt.Errorf("%w: expected %d fields, got %d", ErrParse, len(Header), len(record))
	}

	ts, err := ParseTimestamp(record[0])
	if err != nil {
		return LogEntry{}, err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: invalid value %q", ErrParse, record[2])
	}

	return LogEntry{
		Timestamp: ts,
		SensorID:  record[1],
		Value:     value,
		Unit:      record[3],
	}, nil
}

// ParseTimestamp accepts RFC 3339 timestamps and, for older writers, zone-less ISO 8601
// timestamps which are read as local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		var (
			ts  time.Time
			err error
		)
		if layout == time.RFC3339Nano {
			ts, err = time.Parse(layout, s)
		} else {
			ts, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", ErrParse, s)
}
