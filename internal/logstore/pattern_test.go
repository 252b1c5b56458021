package logstore

import (
	"testing"
	"time"
)

func TestRenderFilename(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)

	tests := []struct {
		pattern string
		want    string
		wantErr bool
	}{
		{pattern: "sensor_logs_%Y%m%d_%H%M%S.csv", want: "sensor_logs_20240307_090503.csv"},
		{pattern: "%y-%b-%d.csv", want: "24-Mar-07.csv"},
		{pattern: "day%j.csv", want: "day067.csv"},
		{pattern: "100%%.csv", want: "100%.csv"},
		{pattern: "plain.csv", want: "plain.csv"},
		{pattern: "bad%", wantErr: true},
		{pattern: "bad%q.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := RenderFilename(tt.pattern, ts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.pattern, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("RenderFilename failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("RenderFilename(%q) = %q, want %q", tt.pattern, got, tt.want)
			}
		})
	}
}
