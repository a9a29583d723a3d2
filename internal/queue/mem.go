package queue

import "context"

// MemQueue is an in-memory, channel-backed Queue implementation for tests
// and single-process demo runs. It has no durability: messages are lost if
// the process exits before they're popped.
type MemQueue struct {
	ch chan []byte
}

// NewMemQueue creates an in-memory queue with the given buffer capacity.
func NewMemQueue(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemQueue{ch: make(chan []byte, capacity)}
}

// Push enqueues value, blocking if the buffer is full.
func (q *MemQueue) Push(ctx context.Context, value []byte) error {
	select {
	case q.ch <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BlockingPop dequeues the next value, blocking until one arrives or ctx is
// cancelled.
func (q *MemQueue) BlockingPop(ctx context.Context) ([]byte, error) {
	select {
	case v, ok := <-q.ch:
		if !ok {
			return nil, context.Canceled
		}
		return v, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Size returns the number of messages currently buffered.
func (q *MemQueue) Size() int {
	return len(q.ch)
}

// Close closes the underlying channel. Safe to call once.
func (q *MemQueue) Close() error {
	close(q.ch)
	return nil
}
