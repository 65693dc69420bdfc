// Package memory provides queue implementations for local development.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roshanis/shopagent/internal/service"
)

// Queue is a bounded in-memory evaluation queue with context-aware operations.
type Queue struct {
	ch      chan service.QueueItem
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan service.QueueItem, capacity),
	}
}

// Enqueue pushes an evaluation into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item service.QueueItem) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return errors.New("queue closed")
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Len reports how many evaluations are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dequeue pops the next evaluation, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (service.QueueItem, error) {
	select {
	case <-ctx.Done():
		return service.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return service.QueueItem{}, errors.New("queue closed")
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown. It waits for blocked
// Enqueue calls to return.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
