package logstore

import "time"

// RotationConfig holds the thresholds that drive rotation and retention.
// Each threshold is enforced independently; crossing any one of them rotates.
type RotationConfig struct {
	RotateEvery          time.Duration
	MaxSizeBytes         int64
	RotateAfterLines     int
	Retention            time.Duration
	BufferFlushThreshold int
}

// Validate checks that every threshold is usable.
func (c RotationConfig) Validate() error {
	if c.RotateEvery <= 0 {
		return configErrorf("rotate_every must be positive, got %s", c.RotateEvery)
	}
	if c.MaxSizeBytes <= 0 {
		return configErrorf("max_size_bytes must be positive, got %d", c.MaxSizeBytes)
	}
	if c.RotateAfterLines <= 0 {
		return configErrorf("rotate_after_lines must be positive, got %d", c.RotateAfterLines)
	}
	if c.Retention <= 0 {
		return configErrorf("retention must be positive, got %s", c.Retention)
	}
	if c.BufferFlushThreshold <= 0 {
		return configErrorf("buffer_flush_threshold must be positive, got %d", c.BufferFlushThreshold)
	}
	return nil
}

// Trigger names the condition that caused a rotation.
type Trigger string

const (
	TriggerNone   Trigger = ""
	TriggerTime   Trigger = "time"
	TriggerSize   Trigger = "size"
	TriggerLines  Trigger = "lines"
	TriggerManual Trigger = "manual"
)

// ShouldRotate decides from scratch whether the active file must be rotated.
// Checks run in the order time, size, lines and the first hit wins.
func ShouldRotate(state ActiveFileState, now time.Time, cfg RotationConfig) (bool, Trigger) {
	if !state.StartTime.IsZero() && now.Sub(state.StartTime) >= cfg.RotateEvery {
		return true, TriggerTime
	}
	if state.ByteSize >= cfg.MaxSizeBytes {
		return true, TriggerSize
	}
	if state.LineCount >= cfg.RotateAfterLines {
		return true, TriggerLines
	}
	return false, TriggerNone
}
