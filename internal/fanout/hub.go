// Package fanout delivers each reading to every registered subscriber.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// Subscriber receives readings from a Hub.
type Subscriber interface {
	HandleReading(ctx context.Context, e logstore.LogEntry) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, e logstore.LogEntry) error

// HandleReading calls f.
func (f SubscriberFunc) HandleReading(ctx context.Context, e logstore.LogEntry) error {
	return f(ctx, e)
}

// DeliveryError records a failed delivery to one subscriber.
type DeliveryError struct {
	Subscriber string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("subscriber %s: %v", e.Subscriber, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type registration struct {
	name string
	sub  Subscriber
}

// Stats counts deliveries per subscriber.
type Stats struct {
	Published int64            `json:"published"`
	Failures  map[string]int64 `json:"failures"`
}

// Hub invokes subscribers synchronously, in registration order.
type Hub struct {
	mu     sync.RWMutex
	subs   []registration
	logger *logging.Logger

	statsMu   sync.Mutex
	published int64
	failures  map[string]int64
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Global()
	}
	return &Hub{
		logger:   logger.With("component", "fanout"),
		failures: make(map[string]int64),
	}
}

// Register appends a subscriber. Names must be unique.
func (h *Hub) Register(name string, sub Subscriber) error {
	if sub == nil {
		return fmt.Errorf("subscriber %q is nil", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.subs {
		if r.name == name {
			return fmt.Errorf("subscriber %q already registered", name)
		}
	}
	h.subs = append(h.subs, registration{name: name, sub: sub})
	return nil
}

// Subscribers returns the registered names in delivery order.
func (h *Hub) Subscribers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, len(h.subs))
	for i, r := range h.subs {
		names[i] = r.name
	}
	return names
}

// Publish delivers e to every subscriber. A failing or panicking subscriber does not
// stop delivery to the others; all failures are joined into the returned error.
func (h *Hub) Publish(ctx context.Context, e logstore.LogEntry) error {
	h.mu.RLock()
	subs := make([]registration, len(h.subs))
	copy(subs, h.subs)
	h.mu.RUnlock()

	var errs []error
	for _, r := range subs {
		if err := h.deliver(ctx, r, e); err != nil {
			h.logger.Warn("Subscriber failed",
				"subscriber", r.name,
				"sensor_id", e.SensorID,
				"error", err)
			h.recordFailure(r.name)
			errs = append(errs, &DeliveryError{Subscriber: r.name, Err: err})
		}
	}

	h.statsMu.Lock()
	h.published++
	h.statsMu.Unlock()

	return errors.Join(errs...)
}

// HandleReading lets one hub feed another.
func (h *Hub) HandleReading(ctx context.Context, e logstore.LogEntry) error {
	return h.Publish(ctx, e)
}

func (h *Hub) deliver(ctx context.Context, r registration, e logstore.LogEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.sub.HandleReading(ctx, e)
}

func (h *Hub) recordFailure(name string) {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	h.failures[name]++
}

// Stats returns delivery counters.
func (h *Hub) Stats() Stats {
	h.statsMu.Lock()
	defer h.statsMu.Unlock()

	failures := make(map[string]int64, len(h.failures))
	for k, v := range h.failures {
		failures[k] = v
	}
	return Stats{Published: h.published, Failures: failures}
}
