// Package queue holds ballots between the dispatcher and the broadcast
// workers. Enqueue never blocks: a full queue rejects the ballot.
package queue

import (
	"context"
	"sync"

	"github.com/okian/trailvote/internal/domain/model"
	"github.com/okian/trailvote/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Ballot is the payload type flowing through the queue.
type Ballot = model.Ballot

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a ballot to the queue.
	// Returns false if the queue is full or closed and the ballot was not enqueued.
	Enqueue(ctx context.Context, b Ballot) bool

	// Dequeue returns the channel ballots are delivered on.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Ballot

	Len(ctx context.Context) int

	Cap() int

	// Close stops accepting ballots. Already queued ballots remain readable.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	ballots  chan Ballot
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.ballots = make(chan Ballot, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)

	return q
}

// Enqueue adds a ballot to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, b Ballot) bool { //nolint:gocritic // hugeParam: Ballot is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed || ctx.Err() != nil {
		return false
	}

	select {
	case q.ballots <- b:
		metrics.UpdateQueueSize(len(q.ballots))
		return true
	default:
		return false
	}
}

// Dequeue returns the underlying channel. Consumers share it, so each ballot
// is delivered to exactly one reader.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Ballot {
	return q.ballots
}

// Len returns the current number of queued ballots.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := len(q.ballots)
	metrics.UpdateQueueSize(n)
	return n
}

// Cap returns the configured capacity.
func (q *InMemoryQueue) Cap() int {
	return q.capacity
}

// Close gracefully shuts down the queue. Closing twice is a no-op.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.ballots)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
