package queue

import (
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soltixdb/sensorlog/internal/logging"
)

func isKafkaAvailable() bool {
	return os.Getenv("KAFKA_TEST") == "1"
}

func getKafkaBrokers() []string {
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		return []string{brokers}
	}
	return []string{"localhost:9092"}
}

func TestNewKafkaQueue_Defaults(t *testing.T) {
	q, err := newKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}}, logging.NewNop())
	if err != nil {
		t.Fatalf("Failed to create Kafka queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	if q.config.GroupID != "sensorlog-group" {
		t.Errorf("GroupID = %q, want sensorlog-group", q.config.GroupID)
	}
	if q.config.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", q.config.BatchSize)
	}
	if q.config.CommitRetries != 3 {
		t.Errorf("CommitRetries = %d, want 3", q.config.CommitRetries)
	}
}

func TestNewKafkaQueue_NoBrokers(t *testing.T) {
	if _, err := newKafkaQueue(KafkaConfig{}, logging.NewNop()); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestKafkaQueue_WriterPerTopic(t *testing.T) {
	q, _ := newKafkaQueue(KafkaConfig{Brokers: []string{"localhost:9092"}}, logging.NewNop())
	defer func() { _ = q.Close() }()

	a := q.writer("a")
	if q.writer("a") != a {
		t.Error("writer not reused for the same topic")
	}
	if q.writer("b") == a {
		t.Error("writer shared across topics")
	}
	if got := q.Stats("missing"); got.Writes != 0 {
		t.Errorf("Stats(missing).Writes = %d, want 0", got.Writes)
	}
}

func TestKafkaQueue_PublishAndSubscribe(t *testing.T) {
	if !isKafkaAvailable() {
		t.Skip("Kafka not available, set KAFKA_TEST=1 to run")
	}

	q, err := newKafkaQueue(KafkaConfig{Brokers: getKafkaBrokers(), GroupID: "test-group"}, logging.NewNop())
	if err != nil {
		t.Fatalf("Failed to create Kafka queue: %v", err)
	}
	defer func() { _ = q.Close() }()

	topic := "sensorlog-test-" + time.Now().Format("150405")
	var received atomic.Int32
	if err := q.Subscribe(topic, func(Message) error {
		received.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := q.Publish(t.Context(), topic, []byte("x")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitFor(t, 30*time.Second, func() bool { return received.Load() >= 1 })
}
