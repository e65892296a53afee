// Package ingest turns record events consumed from Kafka into database
// writes.
//
// A record event is a JSON object:
//
//	{"id": "dev-42", "fields": {"Name": "thermostat", "Port": 8080, "Online": true}}
//
// Field values must be JSON scalars. Events that can never be indexed
// (undecodable, invalid, or a duplicate ID under the reject policy) are
// logged, counted as invalid and acknowledged. Retryable write errors are
// retried with backoff; any other write failure is returned, which stops the
// consumer with the message's offset uncommitted.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/internal/value"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Sharded-Field-Index/pkg/resilience"
)

// RecordEvent is the payload of one message on the records topic.
type RecordEvent struct {
	ID     string                 `json:"id"`
	Fields map[string]value.Value `json:"fields"`
}

// Indexer is the write surface of *database.Database.
type Indexer interface {
	AddRecord(ctx context.Context, id string, fields map[string]value.Value) error
}

// NewPublisher returns a producer of record events keyed by record ID, so
// every version of a record goes to one partition and is applied in order.
func NewPublisher(cfg config.KafkaConfig) *kafka.Producer[RecordEvent] {
	return kafka.NewProducer(cfg, cfg.RecordsTopic, func(ev RecordEvent) string { return ev.ID })
}

// Handler indexes record events.
type Handler struct {
	db      Indexer
	metrics *metrics.Metrics
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

func NewHandler(db Indexer, m *metrics.Metrics) *Handler {
	return &Handler{
		db:      db,
		metrics: m,
		retry: resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			ShouldRetry:  apperrors.Retryable,
		},
		logger: slog.Default().With("component", "ingest"),
	}
}

// Handle implements kafka.MessageHandler.
func (h *Handler) Handle(ctx context.Context, key, payload []byte) error {
	ev, err := kafka.DecodeJSON[RecordEvent](payload)
	if err != nil {
		h.reject(key, err)
		return nil
	}
	if err := Validate(&ev, string(key)); err != nil {
		h.reject(key, err)
		return nil
	}
	err = resilience.Retry(ctx, "ingest-add-record", h.retry, func() error {
		return h.db.AddRecord(ctx, ev.ID, ev.Fields)
	})
	if errors.Is(err, apperrors.ErrRecordExists) {
		h.reject(key, err)
		return nil
	}
	if err != nil {
		h.metrics.IngestMessage("failed")
		return fmt.Errorf("indexing record %s: %w", ev.ID, err)
	}
	h.metrics.IngestMessage("indexed")
	h.logger.Debug("record indexed", "record_id", ev.ID, "fields", len(ev.Fields))
	return nil
}

func (h *Handler) reject(key []byte, err error) {
	h.metrics.IngestMessage("invalid")
	var verr *ValidationError
	if errors.As(err, &verr) {
		h.logger.Warn("invalid record event", "key", string(key), "errors", verr.Fields)
		return
	}
	if errors.Is(err, apperrors.ErrRecordExists) {
		h.logger.Warn("duplicate record event", "key", string(key), "error", err)
		return
	}
	h.logger.Warn("undecodable record event", "key", string(key), "error", err)
}

// MessageHandler adapts h for kafka.NewConsumer.
func (h *Handler) MessageHandler() kafka.MessageHandler {
	return h.Handle
}
