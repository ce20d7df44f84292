package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"custody-ledger/internal/core/domain"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// AuditPublisher implements ports.AuditPublisher by producing every audit
// entry to a Kafka topic, keyed by resource so one resource stays ordered
// within its partition.
type AuditPublisher struct {
	writer messageWriter
}

// NewAuditPublisher creates a synchronous producer for topic.
func NewAuditPublisher(brokers []string, topic string) *AuditPublisher {
	return &AuditPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish writes entry as a JSON message.
func (p *AuditPublisher) Publish(ctx context.Context, entry *domain.AuditLog) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.ResourceType + ":" + entry.ResourceID),
		Value: value,
		Time:  entry.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *AuditPublisher) Close() error {
	return p.writer.Close()
}
