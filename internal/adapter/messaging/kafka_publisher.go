package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

type messageWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// KafkaPublisher writes domain events to one topic, keyed by part id so a
// part's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(broker, topic string, tp trace.TracerProvider, logger *zap.Logger) (*KafkaPublisher, error) {
	base := &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}

	writer, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes([]attribute.KeyValue{
			semconv.MessagingDestinationNameKey.String(topic),
			attribute.String("messaging.kafka.client_id", "parts-ledger"),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka writer: %w", err)
	}
	return newKafkaPublisher(writer, logger), nil
}

func newKafkaPublisher(writer messageWriter, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger.Named("kafka")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	var errs error
	for _, e := range events {
		payload, err := encodeEvent(e)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("encode %s: %w", e.Type, err))
			continue
		}

		msg := kafka.Message{
			Key:   []byte(e.PartID),
			Value: payload,
			Time:  e.OccurredAt,
			Headers: []kafka.Header{
				{Key: "event-type", Value: []byte(e.Type)},
				{Key: "event-id", Value: []byte(eventID(e))},
			},
		}
		if err := p.writer.WriteMessage(ctx, msg); err != nil {
			errs = errors.Join(errs, fmt.Errorf("write %s: %w", e.Type, err))
			continue
		}
		p.logger.Debug("event published", zap.String("type", string(e.Type)), zap.String("part_id", e.PartID))
	}
	return errs
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
