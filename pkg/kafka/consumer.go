// Package kafka provides the Kafka clients that feed the index: a consumer
// that replays a record topic into a MessageHandler and a JSON producer used
// by the load generator. Both are backed by segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
)

// MessageHandler is a callback invoked for each Kafka message. A handler
// acknowledges a message by returning nil; an error stops the consumer
// before the message's offset is committed.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// messageReader is the subset of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader    messageReader
	logger    *slog.Logger
	handler   MessageHandler
	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a Consumer for the given topic and handler. A group
// without committed offsets starts from the oldest message, so a fresh
// process rebuilds its in-memory index from the whole topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
	}
}

// Start enters the consume loop, fetching and processing messages until ctx
// is cancelled or the handler fails. A failed message is never committed, and
// committing a later offset of its partition would skip it, so Start closes
// the reader and returns the error; the group resumes from the failed
// message once a consumer rejoins.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.failed.Add(1)
			c.logger.Error("failed to process message, stopping",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			if cerr := c.reader.Close(); cerr != nil {
				c.logger.Warn("reader close failed", "error", cerr)
			}
			return fmt.Errorf("processing partition %d offset %d: %w", msg.Partition, msg.Offset, err)
		}
		c.processed.Add(1)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close closes the underlying Kafka reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Counts returns how many messages were handled successfully and how many
// the handler failed.
func (c *Consumer) Counts() (processed, failed int64) {
	return c.processed.Load(), c.failed.Load()
}

// Ping dials each broker until one answers.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

// DecodeJSON is a generic helper that unmarshals a Kafka message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
