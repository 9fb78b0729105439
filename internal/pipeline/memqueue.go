package pipeline

import (
	"context"
	"sync"
)

// QueuedMessage is one enqueued record held by the memory queue.
type QueuedMessage struct {
	Topic string
	Key   []byte
	Value []byte
}

// MemoryQueue is an in-process Queue for tests and single-node runs. It keeps
// messages in enqueue order per topic; Drain hands them to a handler and
// retains anything the handler fails on, mirroring nack-with-requeue.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []QueuedMessage
}

// NewMemoryQueue creates an empty memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Produce(ctx context.Context, topic string, key, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, QueuedMessage{Topic: topic, Key: key, Value: value})
	return nil
}

// Len reports the number of pending messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Drain delivers every pending message to the handler in order. Messages the
// handler rejects stay queued for the next drain. Returns how many were
// acknowledged.
func (q *MemoryQueue) Drain(ctx context.Context, handle func(ctx context.Context, msg QueuedMessage) error) int {
	q.mu.Lock()
	pending := q.messages
	q.messages = nil
	q.mu.Unlock()

	var acked int
	var requeue []QueuedMessage
	for _, msg := range pending {
		if err := handle(ctx, msg); err != nil {
			requeue = append(requeue, msg)
			continue
		}
		acked++
	}

	if len(requeue) > 0 {
		q.mu.Lock()
		q.messages = append(requeue, q.messages...)
		q.mu.Unlock()
	}
	return acked
}
