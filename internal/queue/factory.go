package queue

import (
	"fmt"
	"strings"

	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/logging"
)

// Type names a queue backend.
type Type string

const (
	TypeNATS   Type = "nats"
	TypeRedis  Type = "redis"
	TypeKafka  Type = "kafka"
	TypeMemory Type = "memory"
)

// NewQueue creates a Queue from configuration. NATS is the default backend.
func NewQueue(cfg config.QueueConfig, logger *logging.Logger) (Queue, error) {
	if logger == nil {
		logger = logging.Global()
	}
	queueType := Type(strings.ToLower(cfg.Type))
	if queueType == "" {
		queueType = TypeNATS
	}
	logger = logger.With("component", "queue", "queue_type", string(queueType))

	switch queueType {
	case TypeNATS:
		return newNATSQueue(NATSConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
		}, logger)

	case TypeRedis:
		return newRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: cfg.RedisConsumer,
		}, logger)

	case TypeKafka:
		brokers := cfg.KafkaBrokers
		if len(brokers) == 0 && cfg.URL != "" {
			brokers = strings.Split(cfg.URL, ",")
		}
		return newKafkaQueue(KafkaConfig{
			Brokers: brokers,
			GroupID: cfg.KafkaGroupID,
		}, logger)

	case TypeMemory:
		return newMemoryQueue(logger), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: nats, redis, kafka, memory)", queueType)
	}
}
