// Package forward bridges readings between the fan-out hub and a message queue.
package forward

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/soltixdb/sensorlog/internal/compression"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/soltixdb/sensorlog/internal/queue"
)

// Options selects how readings are encoded on the queue.
type Options struct {
	Subject    string
	Codec      Codec
	Compressor compression.Compressor
	Logger     *logging.Logger
}

// OptionsFrom builds Options from configuration.
func OptionsFrom(cfg config.ForwardConfig, logger *logging.Logger) (Options, error) {
	codec, err := NewCodec(cfg.Codec)
	if err != nil {
		return Options{}, err
	}
	algo, err := compression.ParseAlgorithm(cfg.Compression)
	if err != nil {
		return Options{}, err
	}
	comp, err := compression.GetCompressor(algo)
	if err != nil {
		return Options{}, err
	}
	return Options{Subject: cfg.Subject, Codec: codec, Compressor: comp, Logger: logger}, nil
}

func (o *Options) applyDefaults() error {
	if o.Subject == "" {
		return fmt.Errorf("forward subject is required")
	}
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Compressor == nil {
		o.Compressor = &compression.NoneCompressor{}
	}
	if o.Logger == nil {
		o.Logger = logging.Global()
	}
	return nil
}

// Forwarder publishes every reading it receives to a queue subject. Payloads are framed
// with the compression algorithm byte so the ingesting side needs no configuration.
type Forwarder struct {
	pub       queue.Publisher
	opts      Options
	published atomic.Int64
	failed    atomic.Int64
}

// NewForwarder creates a Forwarder publishing through pub.
func NewForwarder(pub queue.Publisher, opts Options) (*Forwarder, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	opts.Logger = opts.Logger.With("component", "forwarder", "subject", opts.Subject)
	return &Forwarder{pub: pub, opts: opts}, nil
}

// Encode returns the queue payload for e.
func (f *Forwarder) Encode(e logstore.LogEntry) ([]byte, error) {
	body, err := f.opts.Codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode reading: %w", err)
	}
	return compression.Frame(f.opts.Compressor, body)
}

// HandleReading publishes e.
func (f *Forwarder) HandleReading(ctx context.Context, e logstore.LogEntry) error {
	payload, err := f.Encode(e)
	if err != nil {
		f.failed.Add(1)
		return err
	}
	if err := f.pub.Publish(ctx, f.opts.Subject, payload); err != nil {
		f.failed.Add(1)
		f.opts.Logger.Warn("Failed to forward reading", "sensor_id", e.SensorID, "error", err)
		return err
	}
	f.published.Add(1)
	return nil
}

// PublishBatch publishes entries in one broker call and returns how many were accepted.
func (f *Forwarder) PublishBatch(ctx context.Context, entries []logstore.LogEntry) (int, error) {
	msgs := make([]queue.BatchMessage, 0, len(entries))
	for _, e := range entries {
		payload, err := f.Encode(e)
		if err != nil {
			f.failed.Add(1)
			return 0, err
		}
		msgs = append(msgs, queue.BatchMessage{Subject: f.opts.Subject, Data: payload})
	}
	n, err := f.pub.PublishBatch(ctx, msgs)
	f.published.Add(int64(n))
	f.failed.Add(int64(len(msgs) - n))
	return n, err
}

// Stats returns the number of published and failed readings.
func (f *Forwarder) Stats() (published, failed int64) {
	return f.published.Load(), f.failed.Load()
}
