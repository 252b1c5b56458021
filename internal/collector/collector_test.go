package collector

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/logstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []logstore.LogEntry
	err     error
}

func (s *recordingSink) HandleReading(_ context.Context, e logstore.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) received() []logstore.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]logstore.LogEntry(nil), s.entries...)
}

func startServer(t *testing.T, sink Sink, cfg ServerConfig) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(sink, cfg, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv
}

func testClient(addr string) *Client {
	return NewClient(ClientConfig{
		Addr:      addr,
		Timeout:   time.Second,
		Retries:   3,
		KeepAlive: true,
		Backoff:   time.Millisecond,
	}, logging.NewNop())
}

func entry(id string, v float64) logstore.LogEntry {
	return logstore.LogEntry{
		Timestamp: time.Date(2024, 1, 1, 12, 0, 0, 123000, time.UTC),
		SensorID:  id,
		Value:     v,
		Unit:      "C",
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	sink := &recordingSink{}
	srv := startServer(t, sink, ServerConfig{ReadTimeout: time.Second})

	client := testClient(srv.Addr().String())
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	require.NoError(t, client.Send(ctx, entry("T001", 21.5)))
	require.NoError(t, client.HandleReading(ctx, entry("H001", 40)))

	got := sink.received()
	require.Len(t, got, 2)
	assert.Equal(t, "T001", got[0].SensorID)
	assert.True(t, got[0].Timestamp.Equal(entry("T001", 0).Timestamp))
	assert.Equal(t, 21.5, got[0].Value)

	stats := srv.Stats()
	assert.Equal(t, int64(1), stats.Connections, "keep-alive reuses one connection")
	assert.Equal(t, int64(2), stats.Accepted)
}

func TestClientWithoutKeepAliveReconnects(t *testing.T) {
	sink := &recordingSink{}
	srv := startServer(t, sink, ServerConfig{ReadTimeout: time.Second})

	client := testClient(srv.Addr().String())
	client.cfg.KeepAlive = false

	for i := 0; i < 3; i++ {
		require.NoError(t, client.Send(context.Background(), entry("T001", float64(i))))
	}
	assert.Len(t, sink.received(), 3)
	require.Eventually(t, func() bool { return srv.Stats().Connections == 3 }, time.Second, 5*time.Millisecond)
}

func TestServerRejectsMalformedLines(t *testing.T) {
	sink := &recordingSink{}
	srv := startServer(t, sink, ServerConfig{ReadTimeout: time.Second})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	r := bufio.NewReader(conn)

	lines := []struct {
		send   string
		status string
	}{
		{send: "{not json}\n", status: `{"status":"error"`},
		{send: `{"timestamp":"2024-01-01T00:00:00","value":1}` + "\n", status: `{"status":"error"`},
		{send: `{"sensor_id":"T001","timestamp":"2024-01-01T00:00:00","unit":"C"}` + "\n", status: `{"status":"error"`},
		{send: "\n" + `{"sensor_id":"T001","timestamp":"2024-01-01T08:00:00.5","value":20,"unit":"C"}` + "\n", status: `{"status":"ok"}`},
	}
	for _, l := range lines {
		_, err := conn.Write([]byte(l.send))
		require.NoError(t, err)
		ack, err := r.ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, ack, l.status, "for %q", l.send)
	}

	got := sink.received()
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(time.Date(2024, 1, 1, 8, 0, 0, 5e8, time.Local)))
	assert.Equal(t, int64(3), srv.Stats().Rejected)
}

func TestClientDoesNotRetryRejectedReading(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}
	srv := startServer(t, sink, ServerConfig{ReadTimeout: time.Second})

	client := testClient(srv.Addr().String())
	defer func() { _ = client.Close() }()

	err := client.Send(context.Background(), entry("T001", 1))
	require.Error(t, err)
	var ackErr *AckError
	require.True(t, errors.As(err, &ackErr))
	assert.Contains(t, ackErr.Message, "disk full")
	assert.Equal(t, int64(1), srv.Stats().Rejected)
}

// flakyServer drops the first n connections without answering.
func flakyServer(t *testing.T, drop int32) (string, *atomic.Int32) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	var attempts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := attempts.Add(1)
			go func(conn net.Conn, n int32) {
				defer func() { _ = conn.Close() }()
				r := bufio.NewReader(conn)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				if n <= drop {
					return
				}
				_, _ = conn.Write(encodeAck(nil))
				_, _ = r.ReadString('\n')
			}(conn, n)
		}
	}()
	return ln.Addr().String(), &attempts
}

func TestClientRetriesTransportFailures(t *testing.T) {
	addr, attempts := flakyServer(t, 2)
	client := testClient(addr)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Send(context.Background(), entry("T001", 1)))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	addr, attempts := flakyServer(t, 100)
	client := testClient(addr)
	defer func() { _ = client.Close() }()

	err := client.Send(context.Background(), entry("T001", 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempt(s)")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	client := testClient(addr)
	assert.Error(t, client.Connect(context.Background()))
	assert.Error(t, client.Send(context.Background(), entry("T001", 1)))
}

func TestServerClosesIdleConnections(t *testing.T) {
	srv := startServer(t, &recordingSink{}, ServerConfig{ReadTimeout: 50 * time.Millisecond})

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server should close an idle connection")
}

func TestDecodeReadingDefaultsTimestamp(t *testing.T) {
	now := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	e, err := decodeReading([]byte(`{"sensor_id":"L001","value":0,"unit":"lux"}`), now)
	require.NoError(t, err)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, 0.0, e.Value)
}

func TestDecodeReadingRejectsLineBreaks(t *testing.T) {
	now := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)
	for _, line := range []string{
		`{"sensor_id":"L\n001","value":1,"unit":"lux"}`,
		`{"sensor_id":"L001","value":1,"unit":"lux\r"}`,
	} {
		_, err := decodeReading([]byte(line), now)
		assert.ErrorIs(t, err, ErrInvalidReading, line)
	}
}
