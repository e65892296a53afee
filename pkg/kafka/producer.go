package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
)

// Producer writes JSON-encoded values of type T to one topic. Values with
// the same key land on the same partition and are consumed in publish order.
type Producer[T any] struct {
	writer *kafka.Writer
	key    func(T) string
	logger *slog.Logger
}

// NewProducer creates a Producer for topic that keys each value with key.
func NewProducer[T any](cfg config.KafkaConfig, topic string, key func(T) string) *Producer[T] {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer[T]{
		writer: w,
		key:    key,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish encodes values and writes them in one synchronous call. Nothing is
// written when any value fails to encode.
func (p *Producer[T]) Publish(ctx context.Context, values ...T) error {
	if len(values) == 0 {
		return nil
	}
	messages, err := encode(values, p.key)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.Error("failed to publish batch",
			"count", len(messages),
			"error", err,
		)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (p *Producer[T]) Close() error {
	return p.writer.Close()
}

func encode[T any](values []T, key func(T) string) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(values))
	for _, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling %T: %w", v, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(key(v)),
			Value: b,
		})
	}
	return messages, nil
}
