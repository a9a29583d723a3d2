package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaQueue implements Queue on top of segmentio/kafka-go, with one
// dedicated topic acting as the report_queue.
type KafkaQueue struct {
	reader *kafka.Reader
	writer *kafka.Writer
}

// KafkaConfig holds the settings needed to reach a Kafka cluster.
type KafkaConfig struct {
	Brokers       string
	Topic         string
	ConsumerGroup string
}

// NewKafkaQueue opens a reader/writer pair against the given topic.
func NewKafkaQueue(cfg KafkaConfig) *KafkaQueue {
	brokers := strings.Split(cfg.Brokers, ",")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &KafkaQueue{reader: reader, writer: writer}
}

// Push publishes value to the topic, retrying any write error with a short
// linear backoff (500ms, then 1s), for at most 3 attempts in total.
func (q *KafkaQueue) Push(ctx context.Context, value []byte) error {
	msg := kafka.Message{Value: value, Time: time.Now()}

	var writeErr error
	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			slog.Warn("KafkaQueue: push retry", "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		writeErr = q.writer.WriteMessages(writeCtx, msg)
		cancel()
		if writeErr == nil {
			return nil
		}
	}
	return fmt.Errorf("queue: push after %d attempts: %w", maxRetries, writeErr)
}

// BlockingPop reads the next message, blocking until one arrives or ctx is
// cancelled.
func (q *KafkaQueue) BlockingPop(ctx context.Context) ([]byte, error) {
	msg, err := q.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

// Size returns the reader's current lag: the approximate number of messages
// still unread on the consumer group's assigned partitions. It reflects the
// last fetch, not a live count, and is 0 until the reader has consumed at
// least once.
func (q *KafkaQueue) Size() int {
	return int(q.reader.Stats().Lag)
}

// Close shuts down both the reader and the writer.
func (q *KafkaQueue) Close() error {
	readerErr := q.reader.Close()
	writerErr := q.writer.Close()
	if readerErr != nil {
		return readerErr
	}
	return writerErr
}
