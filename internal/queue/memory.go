package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/soltixdb/sensorlog/internal/logging"
)

const memoryChannelCapacity = 10000

// MemoryQueue implements Queue with buffered channels. Messages are lost on exit; it
// exists for tests and single-process setups.
type MemoryQueue struct {
	logger        *logging.Logger
	channels      map[string]chan Message
	subscriptions map[string]context.CancelFunc
	seq           atomic.Uint64
	closed        bool
	wg            sync.WaitGroup
	mu            sync.RWMutex
}

func newMemoryQueue(logger *logging.Logger) *MemoryQueue {
	if logger == nil {
		logger = logging.Global()
	}
	return &MemoryQueue{
		logger:        logger,
		channels:      make(map[string]chan Message),
		subscriptions: make(map[string]context.CancelFunc),
	}
}

func (q *MemoryQueue) channel(subject string) (chan Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	if ch, ok := q.channels[subject]; ok {
		return ch, nil
	}
	ch := make(chan Message, memoryChannelCapacity)
	q.channels[subject] = ch
	return ch, nil
}

// Publish copies data onto the subject's channel under a new sequence-number ID. It
// fails instead of blocking when the channel is full.
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	ch, err := q.channel(subject)
	if err != nil {
		return err
	}

	msg := Message{
		Subject: subject,
		ID:      strconv.FormatUint(q.seq.Add(1), 10),
		Data:    make([]byte, len(data)),
	}
	copy(msg.Data, data)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("channel full for subject: %s", subject)
	}
}

// PublishBatch publishes messages in order and stops at the first failure.
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	for i, msg := range messages {
		if err := q.Publish(ctx, msg.Subject, msg.Data); err != nil {
			return i, err
		}
	}
	return len(messages), nil
}

// Subscribe starts a consumer goroutine for subject. A message whose handler fails is
// requeued once, with its ID, at the back of the channel.
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	ch, err := q.channel(subject)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.subscriptions[subject] = cancel

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		retried := make(map[string]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-ch:
				err := handler(msg)
				if err == nil {
					delete(retried, msg.ID)
					continue
				}
				q.logger.Warn("Message handler failed", "subject", subject, "id", msg.ID, "error", err)
				if !retried[msg.ID] {
					retried[msg.ID] = true
					select {
					case ch <- msg:
					default:
					}
				} else {
					delete(retried, msg.ID)
				}
			}
		}
	}()
	return nil
}

// Unsubscribe stops the consumer for subject. Undelivered messages stay queued.
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(q.subscriptions, subject)
	return nil
}

// Close stops every consumer and drops pending messages.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for subject, cancel := range q.subscriptions {
		cancel()
		delete(q.subscriptions, subject)
	}
	q.mu.Unlock()

	q.wg.Wait()

	q.mu.Lock()
	q.channels = make(map[string]chan Message)
	q.mu.Unlock()
	return nil
}

// Pending returns the number of queued messages for subject.
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if ch, ok := q.channels[subject]; ok {
		return len(ch)
	}
	return 0
}
