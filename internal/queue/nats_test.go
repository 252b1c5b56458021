package queue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/soltixdb/sensorlog/internal/logging"
)

// setupTestNATS creates an embedded NATS server with JetStream enabled
func setupTestNATS(t *testing.T) (*server.Server, string) {
	t.Helper()
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns, ns.ClientURL()
}

func newTestNATSQueue(t *testing.T, url string, cfg NATSConfig) *NATSQueue {
	t.Helper()
	cfg.URL = url
	q, err := newNATSQueue(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Failed to create NATS queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNewNATSQueue_InvalidURL(t *testing.T) {
	if _, err := newNATSQueue(NATSConfig{URL: "nats://127.0.0.1:1"}, logging.NewNop()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestNATSQueue_Defaults(t *testing.T) {
	_, url := setupTestNATS(t)
	q := newTestNATSQueue(t, url, NATSConfig{})

	if q.cfg.StreamPrefix != "sensorlog" {
		t.Errorf("StreamPrefix = %q, want sensorlog", q.cfg.StreamPrefix)
	}
	if q.cfg.MaxDeliver != 5 {
		t.Errorf("MaxDeliver = %d, want 5", q.cfg.MaxDeliver)
	}
}

func TestNATSQueue_PublishAndSubscribe(t *testing.T) {
	_, url := setupTestNATS(t)
	q := newTestNATSQueue(t, url, NATSConfig{})

	var (
		mu       sync.Mutex
		received []string
	)
	if err := q.Subscribe("sensorlog.readings", func(msg Message) error {
		mu.Lock()
		received = append(received, string(msg.Data))
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for _, msg := range []string{"one", "two"} {
		if err := q.Publish(t.Context(), "sensorlog.readings", []byte(msg)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	})
}

func TestNATSQueue_DurableStreamKeepsMessages(t *testing.T) {
	_, url := setupTestNATS(t)
	q := newTestNATSQueue(t, url, NATSConfig{})

	// Creating the subscription creates the stream, so messages published after
	// Unsubscribe are retained for the next consumer.
	if err := q.Subscribe("sensorlog.buffered", func(Message) error { return nil }); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Unsubscribe("sensorlog.buffered"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	n, err := q.PublishBatch(t.Context(), []BatchMessage{
		{Subject: "sensorlog.buffered", Data: []byte("1")},
		{Subject: "sensorlog.buffered", Data: []byte("2")},
		{Subject: "sensorlog.buffered", Data: []byte("3")},
	})
	if err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("published = %d, want 3", n)
	}

	info, err := q.js.StreamInfo("sensorlog-sensorlog_buffered")
	if err != nil {
		t.Fatalf("StreamInfo failed: %v", err)
	}
	if info.State.Msgs != 3 {
		t.Errorf("stream messages = %d, want 3", info.State.Msgs)
	}
}

func TestNATSQueue_NakRedelivers(t *testing.T) {
	_, url := setupTestNATS(t)
	q := newTestNATSQueue(t, url, NATSConfig{AckWait: 200 * time.Millisecond, MaxDeliver: 3})

	var (
		calls atomic.Int32
		mu    sync.Mutex
		ids   []string
	)
	if err := q.Subscribe("sensorlog.retry", func(msg Message) error {
		mu.Lock()
		ids = append(ids, msg.ID)
		mu.Unlock()
		if calls.Add(1) == 1 {
			return nats.ErrTimeout
		}
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Publish(t.Context(), "sensorlog.retry", []byte("x")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool { return calls.Load() >= 2 })
	mu.Lock()
	defer mu.Unlock()
	if ids[0] == "" || ids[0] != ids[1] {
		t.Errorf("redelivered message IDs = %q, want the same stream sequence", ids[:2])
	}
}

func TestNATSQueue_DuplicateSubscribe(t *testing.T) {
	_, url := setupTestNATS(t)
	q := newTestNATSQueue(t, url, NATSConfig{})

	handler := func(Message) error { return nil }
	if err := q.Subscribe("sensorlog.dup", handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Subscribe("sensorlog.dup", handler); err == nil {
		t.Error("expected error on duplicate subscribe")
	}
	if err := q.Unsubscribe("sensorlog.other"); err == nil {
		t.Error("expected error unsubscribing unknown subject")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"sensorlog.readings", "sensorlog_readings"},
		{"a.*.>", "a____"},
		{"plain-name_1", "plain-name_1"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
