package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tenant-service/internal/model"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const deliveryTimeout = 10 * time.Second

// auditEvent is the wire form of a persisted audit row
type auditEvent struct {
	ID         uint            `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	ActorID    *uint           `json:"actor_id,omitempty"`
	TenantID   *uint           `json:"tenant_id,omitempty"`
	IP         string          `json:"ip,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// AuditPublisher mirrors audit rows to a Kafka topic, keyed by tenant
type AuditPublisher struct {
	producer *kafka.Producer
	topic    string
	log      *zap.Logger
}

// NewAuditPublisher creates a producer for the given brokers and topic
func NewAuditPublisher(bootstrapServers, topic string, log *zap.Logger) (*AuditPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
		"acks":              "all",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Audit Kafka producer created", zap.String("topic", topic))
	return &AuditPublisher{producer: p, topic: topic, log: log}, nil
}

// Publish sends entry and waits for its delivery report
func (p *AuditPublisher) Publish(ctx context.Context, entry *model.AuditLog) error {
	event := auditEvent{
		ID:         entry.ID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		OldValues:  json.RawMessage(entry.OldValues),
		NewValues:  json.RawMessage(entry.NewValues),
		ActorID:    entry.ActorID,
		TenantID:   entry.TenantID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		OccurredAt: entry.CreatedAt.UTC(),
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := entry.EntityType + ":" + entry.EntityID
	if entry.TenantID != nil {
		key = strconv.FormatUint(uint64(*entry.TenantID), 10)
	}

	// buffered so a late delivery report never blocks librdkafka
	deliveryChan := make(chan kafka.Event, 1)
	if err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "entity_type", Value: []byte(entry.EntityType)},
			{Key: "action", Value: []byte(entry.Action)},
		},
	}, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected event type: %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error)
		}
		return nil
	case <-time.After(deliveryTimeout):
		return fmt.Errorf("delivery timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending messages and closes the producer
func (p *AuditPublisher) Close() {
	p.log.Info("Closing audit Kafka producer")
	p.producer.Flush(15 * 1000)
	p.producer.Close()
}
