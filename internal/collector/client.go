package collector

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Addr      string
	Timeout   time.Duration // Dial timeout and the wait for each ACK
	Retries   int           // Total attempts per reading
	KeepAlive bool          // Reuse the connection between readings
	Backoff   time.Duration // First retry interval, doubled on each retry
}

// Client sends readings to a collector Server. It is safe for concurrent use; sends
// are serialized over a single connection.
type Client struct {
	cfg    ClientConfig
	logger *logging.Logger
	dialer net.Dialer

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewClient creates a client. No connection is made until the first Send or Connect.
func NewClient(cfg ClientConfig, logger *logging.Logger) *Client {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "collector_client", "addr", cfg.Addr),
		dialer: net.Dialer{Timeout: cfg.Timeout},
	}
}

// Connect opens the connection eagerly. It is a no-op if one is already open.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Addr, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.logger.Debug("Connected to collector")
	return nil
}

// Send delivers one reading and waits for its ACK. Transport failures, timeouts and
// unreadable ACKs close the connection and are retried with exponential backoff up to
// Retries attempts. A reading the server explicitly rejects is not retried.
func (c *Client) Send(ctx context.Context, e logstore.LogEntry) error {
	payload, err := encodeReading(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.Backoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.Retries-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.sendOnce(ctx, payload)
		if err != nil {
			var ackErr *AckError
			if errors.As(err, &ackErr) {
				return backoff.Permanent(err)
			}
			c.closeLocked()
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("Send failed, retrying",
			"sensor_id", e.SensorID,
			"attempt", attempt,
			"retry_in", wait,
			"error", err)
	}

	err = backoff.RetryNotify(operation, policy, notify)
	if !c.cfg.KeepAlive {
		c.closeLocked()
	}
	if err != nil {
		c.logger.Error("Giving up on reading", "sensor_id", e.SensorID, "attempts", attempt, "error", err)
		return fmt.Errorf("send %s after %d attempt(s): %w", e.SensorID, attempt, err)
	}
	return nil
}

// HandleReading lets the client act as a fan-out subscriber.
func (c *Client) HandleReading(ctx context.Context, e logstore.LogEntry) error {
	return c.Send(ctx, e)
}

func (c *Client) sendOnce(ctx context.Context, payload []byte) error {
	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}

	if _, err := c.conn.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read ack: %w", err)
	}

	var ack Ack
	if err := json.Unmarshal(line, &ack); err != nil {
		return fmt.Errorf("invalid ack %q: %w", string(line), err)
	}
	if ack.Status != StatusOK {
		return &AckError{Message: ack.Message}
	}
	return nil
}

// Close closes the connection if one is open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *Client) closeLocked() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("Error closing connection", "error", err)
	}
	c.conn = nil
	c.reader = nil
}
