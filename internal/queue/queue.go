// Package queue abstracts the message brokers readings can be forwarded through.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Publisher publishes messages to a queue
type Publisher interface {
	// Publish publishes a message to a subject/topic and waits for the broker to
	// accept it.
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishBatch publishes multiple messages and reports how many were accepted.
	PublishBatch(ctx context.Context, messages []BatchMessage) (int, error)

	Close() error
}

// BatchMessage represents a message for batch publishing
type BatchMessage struct {
	Subject string
	Data    []byte
}

// Subscriber subscribes to messages from a queue
type Subscriber interface {
	// Subscribe delivers every message on subject to handler. A handler error leaves
	// the message unacknowledged so the broker can redeliver it.
	Subscribe(subject string, handler MessageHandler) error

	Unsubscribe(subject string) error

	Close() error
}

// Message is one delivery from a subscription. ID names the broker message and stays
// the same when that message is redelivered; it is empty if the broker gave none.
type Message struct {
	Subject string
	ID      string
	Data    []byte
}

// MessageHandler handles incoming messages
type MessageHandler func(msg Message) error

// Queue combines Publisher and Subscriber interfaces
type Queue interface {
	Publisher
	Subscriber
}
