package logstore

import (
	"testing"
	"time"
)

func TestShouldRotate(t *testing.T) {
	cfg := RotationConfig{
		RotateEvery:          time.Hour,
		MaxSizeBytes:         1000,
		RotateAfterLines:     10,
		Retention:            time.Hour,
		BufferFlushThreshold: 1,
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		state   ActiveFileState
		now     time.Time
		want    bool
		trigger Trigger
	}{
		{
			name:  "below every threshold",
			state: ActiveFileState{StartTime: start, LineCount: 9, ByteSize: 999},
			now:   start.Add(59 * time.Minute),
		},
		{
			name:    "time reached exactly",
			state:   ActiveFileState{StartTime: start},
			now:     start.Add(time.Hour),
			want:    true,
			trigger: TriggerTime,
		},
		{
			name:    "size reached exactly",
			state:   ActiveFileState{StartTime: start, ByteSize: 1000},
			now:     start,
			want:    true,
			trigger: TriggerSize,
		},
		{
			name:    "lines reached exactly",
			state:   ActiveFileState{StartTime: start, LineCount: 10},
			now:     start,
			want:    true,
			trigger: TriggerLines,
		},
		{
			name:    "time wins over size and lines",
			state:   ActiveFileState{StartTime: start, LineCount: 50, ByteSize: 5000},
			now:     start.Add(2 * time.Hour),
			want:    true,
			trigger: TriggerTime,
		},
		{
			name:    "size wins over lines",
			state:   ActiveFileState{StartTime: start, LineCount: 50, ByteSize: 5000},
			now:     start,
			want:    true,
			trigger: TriggerSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, trigger := ShouldRotate(tt.state, tt.now, cfg)
			if got != tt.want || trigger != tt.trigger {
				t.Errorf("ShouldRotate() = (%v, %q), want (%v, %q)", got, trigger, tt.want, tt.trigger)
			}
		})
	}
}

func TestShouldRotateIsStateless(t *testing.T) {
	cfg := RotationConfig{RotateEvery: time.Hour, MaxSizeBytes: 10, RotateAfterLines: 10, Retention: time.Hour, BufferFlushThreshold: 1}
	state := ActiveFileState{StartTime: time.Unix(0, 0), ByteSize: 20}
	now := time.Unix(60, 0)

	for i := 0; i < 3; i++ {
		if got, _ := ShouldRotate(state, now, cfg); !got {
			t.Fatalf("call %d: expected rotation", i)
		}
	}
}
