package messaging

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rl1809/parts-ledger/internal/core/domain"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes domain events to a topic exchange with the
// event type as routing key.
type RabbitPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   *zap.Logger
}

func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := newRabbitPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, exchange string, logger *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, exchange: exchange, logger: logger.Named("rabbitmq")}
}

func (p *RabbitPublisher) Publish(ctx context.Context, events ...domain.Event) error {
	var errs error
	for _, e := range events {
		body, err := encodeEvent(e)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("encode %s: %w", e.Type, err))
			continue
		}

		err = p.ch.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    eventID(e),
			Timestamp:    e.OccurredAt,
			Type:         string(e.Type),
			Body:         body,
		})
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("publish %s: %w", e.Type, err))
			continue
		}
		p.logger.Debug("event published", zap.String("type", string(e.Type)), zap.String("part_id", e.PartID))
	}
	return errs
}

func (p *RabbitPublisher) Close() error {
	var errs error
	if p.ch != nil {
		errs = errors.Join(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = errors.Join(errs, p.conn.Close())
	}
	return errs
}
