package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepBoundary(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	retention := 24 * time.Hour
	cutoff := now.Add(-retention)

	old := writeFile(t, dir, "old.zip", "x")
	edge := writeFile(t, dir, "edge.zip", "x")
	fresh := writeFile(t, dir, "fresh.zip", "x")
	notArchive := writeFile(t, dir, "notes.txt", "x")

	require.NoError(t, os.Chtimes(old, cutoff.Add(-time.Second), cutoff.Add(-time.Second)))
	require.NoError(t, os.Chtimes(edge, cutoff, cutoff))
	require.NoError(t, os.Chtimes(fresh, cutoff.Add(time.Second), cutoff.Add(time.Second)))
	require.NoError(t, os.Chtimes(notArchive, cutoff.Add(-time.Hour), cutoff.Add(-time.Hour)))

	s := NewSweeper(dir, retention, func() time.Time { return now }, testLogger())
	result := s.Sweep()

	assert.True(t, result.Cutoff.Equal(cutoff))
	assert.Equal(t, []string{old}, result.Deleted)
	assert.Equal(t, 2, result.Kept)
	assert.Empty(t, result.Errors)

	for _, path := range []string{edge, fresh, notArchive} {
		_, err := os.Stat(path)
		assert.NoError(t, err, "%s must survive the sweep", filepath.Base(path))
	}
}

func TestSweepMissingDirectory(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "missing"), time.Hour, nil, testLogger())
	result := s.Sweep()
	assert.Empty(t, result.Deleted)
	assert.Empty(t, result.Errors)
}

func TestSweepContinuesPastFailedDelete(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-48 * time.Hour)

	var paths []string
	for _, name := range []string{"a.zip", "b.zip", "c.zip"} {
		path := writeFile(t, dir, name, "x")
		require.NoError(t, os.Chtimes(path, expired, expired))
		paths = append(paths, path)
	}

	s := NewSweeper(dir, 24*time.Hour, func() time.Time { return now }, testLogger())
	s.remove = func(path string) error {
		if filepath.Base(path) == "b.zip" {
			return fmt.Errorf("remove %s: %w", path, os.ErrPermission)
		}
		return os.Remove(path)
	}
	result := s.Sweep()

	assert.Equal(t, []string{paths[0], paths[2]}, result.Deleted)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrRetention)
	assert.ErrorIs(t, result.Errors[0], os.ErrPermission)
	assert.FileExists(t, paths[1])
}

func TestSweepReadOnlyDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not apply to root")
	}
	dir := t.TempDir()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-48 * time.Hour)
	path := writeFile(t, dir, "old.zip", "x")
	require.NoError(t, os.Chtimes(path, expired, expired))

	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	result := NewSweeper(dir, 24*time.Hour, func() time.Time { return now }, testLogger()).Sweep()
	assert.Empty(t, result.Deleted)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], ErrRetention)
	assert.FileExists(t, path)
}

func TestRotationOpensNewFileWhenSweepFails(t *testing.T) {
	clock := newFakeClock(epoch)
	s, dir := newTestStore(t, "sensors_%H%M.csv", testRotation(), clock)

	stale := writeFile(t, filepath.Join(dir, ArchiveDirName), "stale.zip", "x")
	old := epoch.Add(-60 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	s.sweeper.remove = func(path string) error {
		return fmt.Errorf("remove %s: %w", path, os.ErrPermission)
	}

	require.NoError(t, s.Append(reading("temp", epoch, 1)))
	first := s.ActiveFile().Path

	clock.Advance(time.Minute)
	require.NoError(t, s.Rotate())

	assert.Equal(t, StateActive, s.State())
	assert.NotEqual(t, first, s.ActiveFile().Path)
	assert.Equal(t, 0, s.ActiveFile().LineCount)

	sweep := s.LastSweep()
	require.Len(t, sweep.Errors, 1)
	assert.ErrorIs(t, sweep.Errors[0], ErrRetention)
	assert.FileExists(t, stale)

	require.NoError(t, s.Append(reading("temp", epoch.Add(time.Minute), 2)))
	assert.Equal(t, 1, s.ActiveFile().LineCount)
}
