package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestKeepsNewest(t *testing.T) {
	c := NewLatest()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c.Put(logstore.LogEntry{Timestamp: t0.Add(time.Minute), SensorID: "T001", Value: 2})
	c.Put(logstore.LogEntry{Timestamp: t0, SensorID: "T001", Value: 1})

	e, ok := c.Get("T001")
	require.True(t, ok)
	assert.Equal(t, 2.0, e.Value)

	c.Put(logstore.LogEntry{Timestamp: t0.Add(time.Minute), SensorID: "T001", Value: 3})
	e, _ = c.Get("T001")
	assert.Equal(t, 3.0, e.Value, "equal timestamps take the later delivery")

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestSnapshotSorted(t *testing.T) {
	c := NewLatest()
	ctx := context.Background()
	for _, id := range []string{"L001", "AQ001", "T001", "H001"} {
		require.NoError(t, c.HandleReading(ctx, logstore.LogEntry{SensorID: id, Timestamp: time.Now()}))
	}

	snap := c.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, "AQ001", snap[0].SensorID)
	assert.Equal(t, "T001", snap[3].SensorID)
	assert.Equal(t, 4, c.Len())
}

func TestLatestConcurrentAccess(t *testing.T) {
	c := NewLatest()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Put(logstore.LogEntry{SensorID: "S", Timestamp: time.Unix(int64(i*100+j), 0), Value: float64(j)})
				_ = c.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	e, ok := c.Get("S")
	require.True(t, ok)
	assert.Equal(t, int64(799), e.Timestamp.Unix())
}
