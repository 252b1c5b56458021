package forward

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/soltixdb/sensorlog/internal/logstore"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrDecode is returned for payloads that do not hold a reading.
var ErrDecode = errors.New("decode reading")

// Codec converts readings to and from queue payloads.
type Codec interface {
	Name() string
	Marshal(e logstore.LogEntry) ([]byte, error)
	Unmarshal(data []byte) (logstore.LogEntry, error)
}

// NewCodec returns the codec registered under name. The empty string selects json.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "proto", "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %q (supported: json, proto)", name)
	}
}

// JSONCodec encodes readings as the same JSON object the collector speaks.
type JSONCodec struct{}

type jsonReading struct {
	SensorID  string    `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
	Unit      string    `json:"unit"`
}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(e logstore.LogEntry) ([]byte, error) {
	v := e.Value
	return json.Marshal(jsonReading{SensorID: e.SensorID, Timestamp: e.Timestamp, Value: &v, Unit: e.Unit})
}

func (JSONCodec) Unmarshal(data []byte) (logstore.LogEntry, error) {
	var r jsonReading
	if err := json.Unmarshal(data, &r); err != nil {
		return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if r.SensorID == "" || r.Value == nil || r.Timestamp.IsZero() {
		return logstore.LogEntry{}, fmt.Errorf("%w: sensor_id, timestamp and value are required", ErrDecode)
	}
	return logstore.LogEntry{Timestamp: r.Timestamp, SensorID: r.SensorID, Value: *r.Value, Unit: r.Unit}, nil
}

// ProtoCodec encodes readings in protobuf wire format:
//
//	message Reading {
//	  string sensor_id = 1;
//	  sfixed64 timestamp_unix_nano = 2;
//	  double value = 3;
//	  string unit = 4;
//	}
type ProtoCodec struct{}

const (
	fieldSensorID  protowire.Number = 1
	fieldTimestamp protowire.Number = 2
	fieldValue     protowire.Number = 3
	fieldUnit      protowire.Number = 4
)

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Marshal(e logstore.LogEntry) ([]byte, error) {
	b := make([]byte, 0, 32+len(e.SensorID)+len(e.Unit))
	b = protowire.AppendTag(b, fieldSensorID, protowire.BytesType)
	b = protowire.AppendString(b, e.SensorID)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, uint64(e.Timestamp.UnixNano()))
	b = protowire.AppendTag(b, fieldValue, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(e.Value))
	if e.Unit != "" {
		b = protowire.AppendTag(b, fieldUnit, protowire.BytesType)
		b = protowire.AppendString(b, e.Unit)
	}
	return b, nil
}

func (ProtoCodec) Unmarshal(data []byte) (logstore.LogEntry, error) {
	var (
		e                 logstore.LogEntry
		hasTime, hasValue bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldSensorID && typ == protowire.BytesType:
			e.SensorID, n = protowire.ConsumeString(data)
		case num == fieldUnit && typ == protowire.BytesType:
			e.Unit, n = protowire.ConsumeString(data)
		case num == fieldTimestamp && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(data)
			e.Timestamp = time.Unix(0, int64(v)).UTC()
			hasTime = true
		case num == fieldValue && typ == protowire.Fixed64Type:
			var v uint64
			v, n = protowire.ConsumeFixed64(data)
			e.Value = math.Float64frombits(v)
			hasValue = true
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrDecode, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if e.SensorID == "" || !hasTime || !hasValue {
		return logstore.LogEntry{}, fmt.Errorf("%w: sensor_id, timestamp and value are required", ErrDecode)
	}
	return e, nil
}
