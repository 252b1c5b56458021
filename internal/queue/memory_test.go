package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMemoryQueue_PublishAndSubscribe(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	var (
		mu       sync.Mutex
		received []string
	)
	if err := q.Subscribe("readings", func(msg Message) error {
		mu.Lock()
		received = append(received, string(msg.Data))
		mu.Unlock()
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	for _, msg := range []string{"a", "b", "c"} {
		if err := q.Publish(t.Context(), "readings", []byte(msg)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"a", "b", "c"} {
		if received[i] != want {
			t.Errorf("message %d = %q, want %q", i, received[i], want)
		}
	}
}

func TestMemoryQueue_PublishCopiesData(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	data := []byte("original")
	if err := q.Publish(t.Context(), "s", data); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	copy(data, "mutated!")

	got := make(chan string, 1)
	_ = q.Subscribe("s", func(msg Message) error {
		got <- string(msg.Data)
		return nil
	})
	select {
	case msg := <-got:
		if msg != "original" {
			t.Errorf("got %q, want %q", msg, "original")
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestMemoryQueue_HandlerErrorRetriedOnce(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	var calls atomic.Int32
	_ = q.Subscribe("s", func(Message) error {
		calls.Add(1)
		return errors.New("boom")
	})
	_ = q.Publish(t.Context(), "s", []byte("x"))

	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })
	time.Sleep(50 * time.Millisecond)
	if got := calls.Load(); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestMemoryQueue_DuplicateSubscribe(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	handler := func(Message) error { return nil }
	if err := q.Subscribe("s", handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Subscribe("s", handler); err == nil {
		t.Error("expected error on duplicate subscribe")
	}
	if err := q.Unsubscribe("s"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := q.Unsubscribe("s"); err == nil {
		t.Error("expected error unsubscribing twice")
	}
}

func TestMemoryQueue_PendingWithoutSubscriber(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	n, err := q.PublishBatch(t.Context(), []BatchMessage{
		{Subject: "a", Data: []byte("1")},
		{Subject: "a", Data: []byte("2")},
		{Subject: "b", Data: []byte("3")},
	})
	if err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}
	if n != 3 {
		t.Errorf("published = %d, want 3", n)
	}
	if got := q.Pending("a"); got != 2 {
		t.Errorf("Pending(a) = %d, want 2", got)
	}
	if got := q.Pending("missing"); got != 0 {
		t.Errorf("Pending(missing) = %d, want 0", got)
	}
}

func TestMemoryQueue_CancelledContext(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := q.Publish(ctx, "s", []byte("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Publish error = %v, want context.Canceled", err)
	}
}

func TestMemoryQueue_ClosedQueue(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	_ = q.Subscribe("s", func(Message) error { return nil })

	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := q.Publish(t.Context(), "s", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after Close = %v, want ErrClosed", err)
	}
	if err := q.Subscribe("t", func(Message) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}

func TestMemoryQueue_MessageIDs(t *testing.T) {
	q := newMemoryQueue(logging.NewNop())
	defer func() { _ = q.Close() }()

	var (
		mu  sync.Mutex
		ids []string
	)
	_ = q.Subscribe("s", func(msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, msg.ID)
		if string(msg.Data) == "fail-once" && len(ids) == 2 {
			return errors.New("transient")
		}
		return nil
	})

	// Identical payloads are distinct messages; a retried message keeps its ID.
	for _, data := range []string{"same", "fail-once", "same"} {
		if err := q.Publish(t.Context(), "s", []byte(data)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ids) == 4
	})
	mu.Lock()
	defer mu.Unlock()
	if ids[0] == ids[2] {
		t.Errorf("identical payloads share ID %q", ids[0])
	}
	if ids[1] != ids[3] {
		t.Errorf("retried message ID changed: %q then %q", ids[1], ids[3])
	}
	for i, id := range ids {
		if id == "" {
			t.Errorf("message %d has no ID", i)
		}
	}
}
