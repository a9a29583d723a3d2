// Package queue defines the report_queue port: a FIFO of raw message bytes
// that the HTTP ingress publishes to and the pipeline consumes from. Two
// implementations exist: a durable Kafka-backed one for production and a
// non-durable in-memory one for tests and single-process runs.
package queue

import "context"

// Queue is the shared contract between the Kafka-backed and in-memory
// implementations. BlockingPop blocks until a message is available or ctx
// is cancelled.
type Queue interface {
	// Push enqueues raw message bytes.
	Push(ctx context.Context, value []byte) error
	// BlockingPop dequeues the next message, blocking until one is
	// available or ctx is cancelled (in which case it returns ctx.Err()).
	BlockingPop(ctx context.Context) ([]byte, error)
	// Size reports the current queue depth. Exact for MemQueue; an
	// approximate consumer lag estimate for KafkaQueue.
	Size() int
	// Close releases any underlying resources (connections, goroutines).
	Close() error
}
