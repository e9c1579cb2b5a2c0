// Package sink streams audit events to Kafka for downstream compliance
// consumers. The sink is an audit.Store so it can back the publisher directly
// or be fanned out next to a local store.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	id "registro/pkg/domain"
	"registro/pkg/platform/audit"
)

// KafkaSink produces one JSON record per audit event. Producing is
// synchronous so delivery failures surface to the caller; the publisher's
// async buffer keeps that latency off the ingestion path, and its breaker
// needs the error to know the sink is down.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the given brokers. The caller owns Close.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

type wireEvent struct {
	Action       string  `json:"action"`
	Timestamp    string  `json:"timestamp"`
	EntityType   string  `json:"entityType,omitempty"`
	EntityID     string  `json:"entityId,omitempty"`
	SourceSystem string  `json:"sourceSystem,omitempty"`
	SubmittedBy  string  `json:"submittedBy,omitempty"`
	Decision     string  `json:"decision,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	RequestID    string  `json:"requestId,omitempty"`
}

func (s *KafkaSink) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(wireEvent{
		Action:       string(event.Action),
		Timestamp:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		EntityType:   string(event.EntityType),
		EntityID:     event.EntityID.String(),
		SourceSystem: event.SourceSystem,
		SubmittedBy:  event.SubmittedBy,
		Decision:     event.Decision,
		Confidence:   event.Confidence,
		Reason:       event.Reason,
		RequestID:    event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.EntityID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		if s.logger != nil {
			s.logger.Error("audit produce failed", "action", event.Action, "error", err)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListByEntity is not supported on the streaming sink; reads belong to the
// persistent store side of the fan-out.
func (s *KafkaSink) ListByEntity(context.Context, id.EntityID) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka sink is write-only")
}

// Close flushes outstanding produce requests and releases the client.
func (s *KafkaSink) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
