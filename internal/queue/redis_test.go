package queue

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soltixdb/sensorlog/internal/logging"
)

func getRedisURL() string {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return url
	}
	return "redis://localhost:6379"
}

func isRedisAvailable() bool {
	opts, err := redis.ParseURL(getRedisURL())
	if err != nil {
		return false
	}
	client := redis.NewClient(opts)
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

func TestNewRedisQueue_Unreachable(t *testing.T) {
	if _, err := newRedisQueue(RedisConfig{URL: "redis://127.0.0.1:1"}, logging.NewNop()); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedisQueue_PublishAndSubscribe(t *testing.T) {
	if !isRedisAvailable() {
		t.Skip("Redis not available, skipping test")
	}

	stream := "test-sensorlog-" + time.Now().Format("150405.000")
	q, err := newRedisQueue(RedisConfig{URL: getRedisURL(), Stream: stream, Group: "test-group"}, logging.NewNop())
	if err != nil {
		t.Fatalf("Failed to create Redis queue: %v", err)
	}
	defer func() {
		q.client.Del(context.Background(), q.streamName("readings"))
		_ = q.Close()
	}()

	var received atomic.Int32
	if err := q.Subscribe("readings", func(Message) error {
		received.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	n, err := q.PublishBatch(t.Context(), []BatchMessage{
		{Subject: "readings", Data: []byte("1")},
		{Subject: "readings", Data: []byte("2")},
	})
	if err != nil || n != 2 {
		t.Fatalf("PublishBatch = %d, %v", n, err)
	}

	waitFor(t, 10*time.Second, func() bool { return received.Load() == 2 })
}
