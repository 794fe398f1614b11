// Package queue buffers finished batches between the game loop and the
// workers that persist them.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/ceoorcto/internal/domain/model"
	"github.com/okian/ceoorcto/pkg/metrics"
)

const defaultCapacity = 1024

// Job is the payload flowing through the queue.
type Job = model.FlushJob

// Queue offers non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds a job. It returns ErrFull or ErrClosed when the job was not accepted.
	Enqueue(ctx context.Context, j Job) error
	// Dequeue returns the receive side; it is closed after Close once drained.
	Dequeue() <-chan Job
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue over a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if j.Enqueued.IsZero() {
		j.Enqueued = time.Now()
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "full")
		return ErrFull
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue() <-chan Job { return q.jobs }

// Len implements Queue.
func (q *InMemoryQueue) Len() int {
	n := len(q.jobs)
	metrics.UpdateQueueSize(n)
	return n
}

// Close stops accepting jobs. Queued jobs can still be drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.jobs)
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
