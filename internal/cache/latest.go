// Package cache keeps the most recent reading of every sensor in memory.
package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Latest holds one reading per sensor. A reading replaces the cached one only if it is
// not older, so out-of-order deliveries never roll a sensor back.
type Latest struct {
	mu       sync.RWMutex
	readings map[string]logstore.LogEntry
}

// NewLatest creates an empty cache.
func NewLatest() *Latest {
	return &Latest{readings: make(map[string]logstore.LogEntry)}
}

// HandleReading records e. It never fails.
func (l *Latest) HandleReading(_ context.Context, e logstore.LogEntry) error {
	l.Put(e)
	return nil
}

// Put records e unless a newer reading for the same sensor is cached.
func (l *Latest) Put(e logstore.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.readings[e.SensorID]; ok && e.Timestamp.Before(cur.Timestamp) {
		return
	}
	l.readings[e.SensorID] = e
}

// Get returns the cached reading for sensorID.
func (l *Latest) Get(sensorID string) (logstore.LogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.readings[sensorID]
	return e, ok
}

// Snapshot returns all cached readings sorted by sensor id.
func (l *Latest) Snapshot() []logstore.LogEntry {
	l.mu.RLock()
	out := make([]logstore.LogEntry, 0, len(l.readings))
	for _, e := range l.readings {
		out = append(out, e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SensorID < out[j].SensorID })
	return out
}

// Len returns the number of sensors seen.
func (l *Latest) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.readings)
}
