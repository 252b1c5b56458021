package sensor

import (
	"context"
	"errors"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Sink receives every reading the runner produces.
type Sink interface {
	HandleReading(ctx context.Context, e logstore.LogEntry) error
}

// Runner reads all sensors once per interval and hands the readings to a sink.
type Runner struct {
	sensors  []Sensor
	sink     Sink
	interval time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

// NewRunner creates a Runner. A nil logger uses the global one.
func NewRunner(sensors []Sensor, sink Sink, interval time.Duration, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Global()
	}
	return &Runner{
		sensors:  sensors,
		sink:     sink,
		interval: interval,
		now:      time.Now,
		logger:   logger.With("component", "simulator"),
	}
}

// Tick reads every sensor once. Inactive sensors are skipped; sink errors are logged
// and the first one is returned after all sensors were read.
func (r *Runner) Tick(ctx context.Context) error {
	now := r.now()
	var firstErr error
	for _, s := range r.sensors {
		e, err := s.Read(now)
		if errors.Is(err, ErrInactive) {
			continue
		}
		if err != nil {
			return err
		}
		if err := r.sink.HandleReading(ctx, e); err != nil {
			r.logger.Warn("Reading not delivered", "sensor_id", e.SensorID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		r.logger.Debug("Reading", "sensor_id", e.SensorID, "value", e.Value, "unit", e.Unit)
	}
	return firstErr
}

// Run ticks rounds times, or until ctx is done when rounds is 0. The first round runs
// immediately. Delivery errors do not stop the run.
func (r *Runner) Run(ctx context.Context, rounds int) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for done := 0; rounds == 0 || done < rounds; done++ {
		if done > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		_ = r.Tick(ctx)
	}
	return nil
}
