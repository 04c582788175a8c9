// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/getsentry/sentry-go"

	"github.com/gitshopapp/storefront/internal/logging"
)

const (
	TypeOrderPaid       = "order.paid"
	TypeRefundRequested = "refund.requested"
	TypeRefundsGranted  = "refund.granted"
)

type Event struct {
	Type        string    `json:"event_type"`
	OrderID     string    `json:"order_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	RefCode     string    `json:"ref_code,omitempty"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	ChargeID    string    `json:"charge_id,omitempty"`
	Count       int64     `json:"count,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type Config struct {
	Brokers []string
	Topic   string
}

// NewPublisher returns a Kafka publisher, or a no-op one when no brokers are configured.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return NoopPublisher{}, nil
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaPublisher(producer, cfg.Topic, logger), nil
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}
}

// Publish keys messages by order id so one order's events stay on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: traceHeaders(ctx, event.Type),
	}
	if event.OrderID != "" {
		msg.Key = sarama.StringEncoder(event.OrderID)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send %s event: %w", event.Type, err)
	}

	logging.FromContext(ctx, p.logger).Info("event published",
		"topic", p.topic,
		"event_type", event.Type,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func traceHeaders(ctx context.Context, eventType string) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte(eventType)},
	}
	if span := sentry.SpanFromContext(ctx); span != nil {
		headers = append(headers,
			sarama.RecordHeader{Key: []byte(sentry.SentryTraceHeader), Value: []byte(span.ToSentryTrace())},
			sarama.RecordHeader{Key: []byte(sentry.SentryBaggageHeader), Value: []byte(span.ToBaggage())},
		)
	}
	return headers
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
