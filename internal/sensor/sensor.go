// Package sensor simulates the temperature, humidity, light and air-quality sensors
// that feed the log store.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/soltixdb/sensorlog/internal/logstore"
)

// ErrInactive is returned when reading a disabled sensor.
var ErrInactive = errors.New("sensor is inactive")

// TimeOfDay selects the value bands of light and temperature sensors.
type TimeOfDay string

const (
	Day   TimeOfDay = "day"
	Night TimeOfDay = "night"
)

// ParseTimeOfDay parses "day" or "night". The empty string picks one at random.
func ParseTimeOfDay(s string, rng *rand.Rand) (TimeOfDay, error) {
	switch s {
	case "day":
		return Day, nil
	case "night":
		return Night, nil
	case "":
		if rng.IntN(2) == 0 {
			return Day, nil
		}
		return Night, nil
	default:
		return "", fmt.Errorf("invalid time of day %q", s)
	}
}

// Sensor produces readings.
type Sensor interface {
	ID() string
	Name() string
	Unit() string
	// Value returns the last value produced.
	Value() float64
	Read(now time.Time) (logstore.LogEntry, error)
	SetActive(active bool)
}

// base holds the state every simulated sensor shares. step computes the next value from
// the last one; the result is clamped to [lo, hi] and rounded to two decimals.
type base struct {
	id, name, unit string
	lo, hi         float64
	rng            *rand.Rand
	step           func(last float64) float64

	mu     sync.Mutex
	last   float64
	active bool
}

func (b *base) ID() string   { return b.id }
func (b *base) Name() string { return b.name }
func (b *base) Unit() string { return b.unit }

func (b *base) Value() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *base) SetActive(active bool) {
	b.mu.Lock()
	b.active = active
	b.mu.Unlock()
}

func (b *base) Read(now time.Time) (logstore.LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return logstore.LogEntry{}, fmt.Errorf("%s: %w", b.id, ErrInactive)
	}
	b.last = round2(clamp(b.step(b.last), b.lo, b.hi))
	return logstore.LogEntry{Timestamp: now, SensorID: b.id, Value: b.last, Unit: b.unit}, nil
}

func (b *base) uniform(lo, hi float64) float64 {
	return lo + b.rng.Float64()*(hi-lo)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewTemperature returns a sensor drifting by up to ±2 °C per reading, bounded to
// 15..35 during the day and -5..20 at night.
func NewTemperature(id string, tod TimeOfDay, rng *rand.Rand) Sensor {
	lo, hi := -5.0, 20.0
	if tod == Day {
		lo, hi = 15, 35
	}
	s := &base{id: id, name: "Temperature Sensor", unit: "°C", lo: lo, hi: hi, rng: rng, active: true}
	s.last = s.uniform(lo, hi)
	s.step = func(last float64) float64 { return last + s.uniform(-2, 2) }
	return s
}

// NewHumidity returns a sensor in 0..100 % that moves against the linked temperature:
// a rise of more than 0.5 degrees lowers it by 0.5..2, a fall raises it by the same,
// and anything smaller jitters it by ±0.5.
func NewHumidity(id string, temperature Sensor, rng *rand.Rand) Sensor {
	s := &base{id: id, name: "Humidity Sensor", unit: "%", lo: 0, hi: 100, rng: rng, active: true}
	s.last = round2(s.uniform(40, 80))
	lastTemp := temperature.Value()
	s.step = func(last float64) float64 {
		cur := temperature.Value()
		diff := cur - lastTemp
		lastTemp = cur
		switch {
		case diff > 0.5:
			return last + s.uniform(-2, -0.5)
		case diff < -0.5:
			return last + s.uniform(0.5, 2)
		default:
			return last + s.uniform(-0.5, 0.5)
		}
	}
	return s
}

// NewLight returns a sensor drifting by up to ±100 lx, bounded to 200..10000 during
// the day and 0..200 at night.
func NewLight(id string, tod TimeOfDay, rng *rand.Rand) Sensor {
	lo, hi := 0.0, 200.0
	if tod == Day {
		lo, hi = 200, 10000
	}
	s := &base{id: id, name: "Light Sensor", unit: "lx", lo: lo, hi: hi, rng: rng, active: true}
	s.last = s.uniform(lo, hi)
	s.step = func(last float64) float64 { return last + s.uniform(-100, 100) }
	return s
}

// NewAirQuality returns an AQI sensor in 0..500. Each reading has a 5% chance of a
// shock of 20..50 in either direction; otherwise it drifts by up to ±10.
func NewAirQuality(id string, rng *rand.Rand) Sensor {
	s := &base{id: id, name: "Air Quality Sensor", unit: "AQI", lo: 0, hi: 500, rng: rng, active: true}
	s.last = s.uniform(0, 500)
	s.step = func(last float64) float64 {
		if s.rng.Float64() < 0.05 {
			shock := s.uniform(-50, 50)
			if math.Abs(shock) < 20 {
				shock = math.Copysign(20, shock)
			}
			return last + shock
		}
		return last + s.uniform(-10, 10)
	}
	return s
}

// DefaultSet returns the standard sensor set: T001, H001 linked to T001, L001 and
// AQ001. Temperature comes before humidity so one round sees the fresh temperature.
func DefaultSet(tod TimeOfDay, rng *rand.Rand) []Sensor {
	temp := NewTemperature("T001", tod, rng)
	return []Sensor{
		temp,
		NewHumidity("H001", temp, rng),
		NewLight("L001", tod, rng),
		NewAirQuality("AQ001", rng),
	}
}
