package cache

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// SensorStats is a summary of every value seen for one sensor.
type SensorStats struct {
	SensorID string    `json:"sensor_id"`
	Unit     string    `json:"unit"`
	Count    int64     `json:"count"`
	Min      float64   `json:"min"`
	Max      float64   `json:"max"`
	Avg      float64   `json:"avg"`
	P50      float64   `json:"p50"`
	P90      float64   `json:"p90"`
	P99      float64   `json:"p99"`
	First    time.Time `json:"first"`
	Last     time.Time `json:"last"`
}

type aggregate struct {
	unit        string
	count       int64
	sum         float64
	min         float64
	max         float64
	first, last time.Time
	sketch      *ddsketch.DDSketch
}

func (a *aggregate) add(e logstore.LogEntry) {
	a.count++
	a.sum += e.Value
	a.min = math.Min(a.min, e.Value)
	a.max = math.Max(a.max, e.Value)
	if a.first.IsZero() || e.Timestamp.Before(a.first) {
		a.first = e.Timestamp
	}
	if e.Timestamp.After(a.last) {
		a.last = e.Timestamp
	}
	if e.Unit != "" {
		a.unit = e.Unit
	}
	if a.sketch != nil {
		// DDSketch rejects values outside its indexable range; the exact stats still count them.
		_ = a.sketch.Add(e.Value)
	}
}

// Stats keeps running per-sensor statistics with approximate quantiles.
type Stats struct {
	accuracy float64
	mu       sync.Mutex
	sensors  map[string]*aggregate
}

// NewStats creates an empty Stats whose quantiles have the given relative accuracy.
// A non-positive accuracy defaults to 1%.
func NewStats(accuracy float64) *Stats {
	if accuracy <= 0 || accuracy >= 1 {
		accuracy = 0.01
	}
	return &Stats{accuracy: accuracy, sensors: make(map[string]*aggregate)}
}

// HandleReading adds e to its sensor's statistics. It never fails.
func (s *Stats) HandleReading(_ context.Context, e logstore.LogEntry) error {
	s.Add(e)
	return nil
}

// Add adds e to its sensor's statistics.
func (s *Stats) Add(e logstore.LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.sensors[e.SensorID]
	if !ok {
		agg = &aggregate{min: math.MaxFloat64, max: -math.MaxFloat64}
		if sketch, err := ddsketch.NewDefaultDDSketch(s.accuracy); err == nil {
			agg.sketch = sketch
		}
		s.sensors[e.SensorID] = agg
	}
	agg.add(e)
}

// Get returns the statistics for one sensor.
func (s *Stats) Get(sensorID string) (SensorStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agg, ok := s.sensors[sensorID]
	if !ok {
		return SensorStats{}, false
	}
	return agg.result(sensorID), true
}

// Snapshot returns statistics for every sensor sorted by sensor id.
func (s *Stats) Snapshot() []SensorStats {
	s.mu.Lock()
	out := make([]SensorStats, 0, len(s.sensors))
	for id, agg := range s.sensors {
		out = append(out, agg.result(id))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

func (a *aggregate) result(sensorID string) SensorStats {
	r := SensorStats{
		SensorID: sensorID,
		Unit:     a.unit,
		Count:    a.count,
		First:    a.first,
		Last:     a.last,
	}
	if a.count == 0 {
		return r
	}
	r.Min, r.Max = a.min, a.max
	r.Avg = a.sum / float64(a.count)
	if a.sketch != nil && !a.sketch.IsEmpty() {
		qs, err := a.sketch.GetValuesAtQuantiles([]float64{0.50, 0.90, 0.99})
		if err == nil {
			r.P50, r.P90, r.P99 = qs[0], qs[1], qs[2]
		}
	}
	return r
}
