package logstore

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, zerolog.Disabled)
}

// testRotation never rotates on its own unless a test lowers a threshold.
func testRotation() RotationConfig {
	return RotationConfig{
		RotateEvery:          24 * time.Hour,
		MaxSizeBytes:         1 << 30,
		RotateAfterLines:     1_000_000,
		Retention:            30 * 24 * time.Hour,
		BufferFlushThreshold: 1,
	}
}

func newTestStore(t *testing.T, pattern string, rot RotationConfig, clock *fakeClock) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{
		LogDir:          dir,
		FilenamePattern: pattern,
		Rotation:        rot,
	}, WithLogger(testLogger()), WithClock(clock.Now))
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop() })
	return s, dir
}

func reading(sensor string, ts time.Time, value float64) LogEntry {
	return LogEntry{Timestamp: ts, SensorID: sensor, Value: value, Unit: "C"}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func collect(t *testing.T, q *QueryEngine, f Filter) []LogEntry {
	t.Helper()
	var out []LogEntry
	for e, err := range q.Query(t.Context(), f) {
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
