package forward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/soltixdb/sensorlog/internal/compression"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/queue"
)

// Sink receives ingested readings.
type Sink interface {
	HandleReading(ctx context.Context, e logstore.LogEntry) error
}

const defaultDedupWindow = 4096

// Ingestor consumes a queue subject and hands decoded readings to a sink. A broker
// message ID already ingested within the last dedupWindow messages is a redelivery and
// is dropped, so it is never written twice. Identical readings published separately
// carry different IDs and are all kept.
type Ingestor struct {
	sub         queue.Subscriber
	sink        Sink
	opts        Options
	dedupWindow int

	mu     sync.Mutex
	seen   map[uint64]struct{}
	ring   []uint64
	next   int
	cancel context.CancelFunc
	ctx    context.Context

	ingested   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

// NewIngestor creates an Ingestor for opts.Subject. Only Subject, Codec and Logger are
// used; the compression algorithm is read from each payload.
func NewIngestor(sub queue.Subscriber, sink Sink, opts Options) (*Ingestor, error) {
	if sink == nil {
		return nil, fmt.Errorf("ingest sink is required")
	}
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	opts.Logger = opts.Logger.With("component", "ingestor", "subject", opts.Subject)
	return &Ingestor{
		sub:         sub,
		sink:        sink,
		opts:        opts,
		dedupWindow: defaultDedupWindow,
		seen:        make(map[uint64]struct{}, defaultDedupWindow),
		ring:        make([]uint64, 0, defaultDedupWindow),
	}, nil
}

// Start subscribes to the subject. Readings are delivered with ctx until Stop.
func (in *Ingestor) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.cancel != nil {
		in.mu.Unlock()
		return fmt.Errorf("ingestor already started")
	}
	in.ctx, in.cancel = context.WithCancel(ctx)
	in.mu.Unlock()

	if err := in.sub.Subscribe(in.opts.Subject, in.handle); err != nil {
		in.Stop()
		return fmt.Errorf("subscribe %s: %w", in.opts.Subject, err)
	}
	in.opts.Logger.Info("Ingestor started")
	return nil
}

// Stop unsubscribes. It is safe to call more than once.
func (in *Ingestor) Stop() {
	in.mu.Lock()
	cancel := in.cancel
	in.cancel = nil
	in.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if err := in.sub.Unsubscribe(in.opts.Subject); err != nil {
		in.opts.Logger.Debug("Unsubscribe failed", "error", err)
	}
}

// handle is the queue callback. Undecodable or unstorable payloads are acknowledged
// and dropped; sink errors are returned so the broker redelivers.
func (in *Ingestor) handle(msg queue.Message) error {
	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if ctx == nil {
		return errors.New("ingestor stopped")
	}

	var key uint64
	tracked := msg.ID != ""
	if tracked {
		key = xxhash.Sum64String(msg.ID)
		if in.isDuplicate(key) {
			in.duplicates.Add(1)
			return nil
		}
	}

	e, err := in.Decode(msg.Data)
	if err != nil {
		in.rejected.Add(1)
		in.opts.Logger.Warn("Dropping undecodable payload", "id", msg.ID, "bytes", len(msg.Data), "error", err)
		return nil
	}

	if err := in.sink.HandleReading(ctx, e); err != nil {
		return fmt.Errorf("ingest %s: %w", e.SensorID, err)
	}
	if tracked {
		in.remember(key)
	}
	in.ingested.Add(1)
	return nil
}

// Decode unframes and decodes one payload.
func (in *Ingestor) Decode(payload []byte) (logstore.LogEntry, error) {
	body, err := compression.Unframe(payload)
	if err != nil {
		return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	e, err := in.opts.Codec.Unmarshal(body)
	if err != nil {
		return logstore.LogEntry{}, err
	}
	if err := e.Validate(); err != nil {
		return logstore.LogEntry{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e, nil
}

func (in *Ingestor) isDuplicate(key uint64) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.seen[key]
	return ok
}

func (in *Ingestor) remember(key uint64) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, ok := in.seen[key]; ok {
		return
	}
	if len(in.ring) < in.dedupWindow {
		in.ring = append(in.ring, key)
	} else {
		delete(in.seen, in.ring[in.next])
		in.ring[in.next] = key
		in.next = (in.next + 1) % in.dedupWindow
	}
	in.seen[key] = struct{}{}
}

// IngestStats counts handled payloads.
type IngestStats struct {
	Ingested   int64 `json:"ingested"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
}

func (in *Ingestor) Stats() IngestStats {
	return IngestStats{
		Ingested:   in.ingested.Load(),
		Duplicates: in.duplicates.Load(),
		Rejected:   in.rejected.Load(),
	}
}
