package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/soltixdb/sensorlog/internal/logging"
)

// NATSConfig configures the JetStream backend.
type NATSConfig struct {
	URL          string
	Username     string
	Password     string
	StreamPrefix string        // Stream names are <prefix>-<subject> (default: "sensorlog")
	AckWait      time.Duration // Redelivery delay for unacked messages (default: 30s)
	MaxDeliver   int           // Delivery attempts per message (default: 5)
}

func (c *NATSConfig) applyDefaults() {
	if c.StreamPrefix == "" {
		c.StreamPrefix = "sensorlog"
	}
	if c.AckWait <= 0 {
		c.AckWait = 30 * time.Second
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = 5
	}
}

// NATSQueue implements Queue using NATS JetStream with file-backed streams and
// durable consumers, so forwarded readings survive a restart of either side.
type NATSQueue struct {
	cfg           NATSConfig
	conn          *nats.Conn
	js            nats.JetStreamContext
	logger        *logging.Logger
	subscriptions map[string]*nats.Subscription
	mu            sync.Mutex
}

func newNATSQueue(cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	opts := []nats.Option{nats.Name("sensorlog")}
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn, cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func newNATSQueueWithConn(conn *nats.Conn, cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Global()
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NATSQueue{
		cfg:           cfg,
		conn:          conn,
		js:            js,
		logger:        logger,
		subscriptions: make(map[string]*nats.Subscription),
	}, nil
}

// ensureStream creates the stream that captures subject if it does not exist yet.
func (q *NATSQueue) ensureStream(subject string) error {
	name := q.cfg.StreamPrefix + "-" + sanitizeName(subject)
	if _, err := q.js.StreamInfo(name); err == nil {
		return nil
	}
	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{subject},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream for subject %s: %w", subject, err)
	}
	return nil
}

// Publish publishes synchronously and waits for the JetStream ack.
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues all messages asynchronously and waits for the acks.
func (q *NATSQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	futures := make([]nats.PubAckFuture, 0, len(messages))
	for _, msg := range messages {
		future, err := q.js.PublishAsync(msg.Subject, msg.Data)
		if err != nil {
			q.logger.Warn("Failed to queue message", "subject", msg.Subject, "error", err)
			continue
		}
		futures = append(futures, future)
	}

	select {
	case <-q.js.PublishAsyncComplete():
	case <-ctx.Done():
		return 0, fmt.Errorf("timeout waiting for batch publish: %w", ctx.Err())
	}

	ok := 0
	for _, future := range futures {
		select {
		case <-future.Ok():
			ok++
		case err := <-future.Err():
			q.logger.Warn("Batch message rejected", "subject", future.Msg().Subject, "error", err)
		}
	}
	return ok, nil
}

// natsMessageID identifies a JetStream message by its stream sequence.
func natsMessageID(msg *nats.Msg) string {
	meta, err := msg.Metadata()
	if err != nil {
		return ""
	}
	return meta.Stream + ":" + strconv.FormatUint(meta.Sequence.Stream, 10)
}

// Subscribe attaches a durable, manually acked consumer to subject. Failed messages
// are NAKed and redelivered up to MaxDeliver times.
func (q *NATSQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(Message{Subject: msg.Subject, ID: natsMessageID(msg), Data: msg.Data}); err != nil {
			q.logger.Warn("Message handler failed, requesting redelivery",
				"subject", msg.Subject, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("consumer-"+sanitizeName(subject)),
		nats.ManualAck(),
		nats.MaxAckPending(256),
		nats.AckWait(q.cfg.AckWait),
		nats.MaxDeliver(q.cfg.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.subscriptions[subject] = sub
	return nil
}

// Unsubscribe unsubscribes from a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
	}
	return nil
}

// Close drains subscriptions and closes the connection.
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, sub := range q.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			q.logger.Warn("Failed to unsubscribe", "subject", subject, "error", err)
		}
		delete(q.subscriptions, subject)
	}
	q.conn.Close()
	return nil
}

// sanitizeName maps a subject to the characters JetStream allows in stream and
// consumer names: A-Z, a-z, 0-9, dash and underscore.
func sanitizeName(subject string) string {
	result := make([]byte, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
