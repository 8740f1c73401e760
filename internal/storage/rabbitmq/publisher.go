package rabbitmq

import (
	"context"
	"fmt"

	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var _ repository.EventPublisher = (*Publisher)(nil)

// Publisher implements repository.EventPublisher: the C6 relay's sole route
// to the broker, publishing already-serialized outbox payloads under their
// routing key onto outboundExchange.
type Publisher struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger zerolog.Logger
}

// NewPublisher opens its own channel over the shared connection and
// declares outboundExchange.
func NewPublisher(conn *amqp.Connection, logger *zerolog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: publisher: open channel: %w", err)
	}

	p := &Publisher{
		conn:   conn,
		ch:     ch,
		logger: logger.With().Str("component", "rabbitmq_publisher").Logger(),
	}

	if err := p.ch.ExchangeDeclare(outboundExchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: publisher: declare exchange %s: %w", outboundExchange, err)
	}

	return p, nil
}

// Publish sends payload to outboundExchange under routingKey, persisted so
// it survives a broker restart (§4.6).
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}
	if err := p.ch.PublishWithContext(ctx, outboundExchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", routingKey, err)
	}
	return nil
}

// Close gracefully shuts down the publisher's channel. The connection
// itself is owned and closed by fx.
func (p *Publisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
