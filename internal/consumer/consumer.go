// Package consumer runs the worker pool that drains the inbound event
// queue and feeds each message to the C7 event handler (§4.7).
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/eventhandler"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// defaultWorkerCount is the default number of worker goroutines in the pool.
const defaultWorkerCount = 5

const (
	inboundExchange = "notification.events.inbound"
	inboundQueue    = "notification.events.inbound.queue"
)

// envelopeHeader is the minimal subset of model.EventEnvelope this package
// needs to read before dispatching: everything else is the handler's job to
// parse per eventType.
type envelopeHeader struct {
	EventType string `json:"eventType"`
}

// Consumer listens on the inbound queue and processes messages using a pool
// of workers, each with its own channel and QoS prefetch.
type Consumer struct {
	cfg         *config.Config
	logger      zerolog.Logger
	conn        *amqp.Connection
	handler     *eventhandler.Handler
	workerCount int
	queueName   string
	exchange    string
	prefetch    int
}

// New builds the inbound event Consumer.
func New(cfg *config.Config, logger *zerolog.Logger, conn *amqp.Connection, handler *eventhandler.Handler) *Consumer {
	workerCount := cfg.Worker.Count
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	exchange := cfg.RabbitMQ.Exchange
	if exchange == "" {
		exchange = inboundExchange
	}
	queue := cfg.RabbitMQ.Queue
	if queue == "" {
		queue = inboundQueue
	}
	prefetch := cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		cfg:         cfg,
		logger:      logger.With().Str("component", "consumer").Logger(),
		conn:        conn,
		handler:     handler,
		workerCount: workerCount,
		queueName:   queue,
		exchange:    exchange,
		prefetch:    prefetch,
	}
}

// setupTopology declares the inbound exchange/queue and binds the queue to
// catch every inbound event type, independent of the outbound exchange the
// relay publishes to.
func (c *Consumer) setupTopology() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer: open setup channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("consumer: declare exchange %s: %w", c.exchange, err)
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("consumer: declare queue %s: %w", c.queueName, err)
	}
	if err := ch.QueueBind(c.queueName, "#", c.exchange, false, nil); err != nil {
		return fmt.Errorf("consumer: bind queue %s to %s: %w", c.queueName, c.exchange, err)
	}
	return nil
}

// Start declares the topology then launches the worker pool. It blocks
// until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.setupTopology(); err != nil {
		return err
	}

	c.logger.Info().Int("count", c.workerCount).Str("queue", c.queueName).Msg("starting worker pool")
	var wg sync.WaitGroup
	for i := 0; i < c.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.runWorker(ctx, workerID)
		}(i + 1)
	}
	wg.Wait()
	c.logger.Info().Msg("consumer stopped")
	return nil
}

func (c *Consumer) runWorker(ctx context.Context, workerID int) {
	logger := c.logger.With().Int("worker_id", workerID).Logger()
	logger.Info().Msg("worker started")

	ch, err := c.conn.Channel()
	if err != nil {
		logger.Error().Err(err).Msg("failed to open channel for worker")
		return
	}
	defer ch.Close()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		logger.Error().Err(err).Msg("failed to set QoS")
		return
	}

	msgs, err := ch.Consume(
		c.queueName,
		fmt.Sprintf("worker-%d", workerID),
		false, // autoAck: manual ack/nack below
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to register a consumer")
		return
	}

	logger.Info().Msg("worker is waiting for messages")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping due to context cancellation")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn().Msg("message channel closed by broker, worker stopping")
				return
			}
			c.handleMessage(ctx, msg, logger)
		}
	}
}

// handleMessage decodes the event envelope, dispatches to the C7 handler,
// and maps its Outcome onto AMQP ack/nack semantics.
func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
	var hdr envelopeHeader
	if err := json.Unmarshal(msg.Body, &hdr); err != nil || hdr.EventType == "" {
		logger.Error().Err(err).Msg("malformed envelope, discarding")
		_ = msg.Nack(false, false)
		return
	}
	log := logger.With().Str("event_type", hdr.EventType).Logger()

	outcome := c.handler.HandleMessage(ctx, hdr.EventType, msg.Body)
	switch outcome {
	case eventhandler.OutcomeAck:
		_ = msg.Ack(false)
	case eventhandler.OutcomeNackRequeue:
		log.Warn().Msg("requeueing message")
		_ = msg.Nack(false, true)
	case eventhandler.OutcomeNackDiscard:
		log.Warn().Msg("discarding message")
		_ = msg.Nack(false, false)
	default:
		log.Error().Int("outcome", int(outcome)).Msg("unknown outcome, discarding defensively")
		_ = msg.Nack(false, false)
	}
}
