// Package outboxrelay drains OutboxEvent rows written by domain writers and
// publishes them to the broker at-least-once, with exponential backoff on
// publish failure (§4.6).
package outboxrelay

import (
	"context"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/ilindan-dev/notifyhub/pkg/backoff"
	"github.com/rs/zerolog"
)

// defaultMaxRetries matches the §4.6 default; rows past this are skipped as
// dead-letter candidates and surfaced only via metrics/logs.
const defaultMaxRetries = 10

// Config tunes the relay's polling cadence and batch size (§4.6 defaults).
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
}

// DefaultConfig returns the §4.6-specified relay defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		MaxRetries:   defaultMaxRetries,
		RetryBase:    time.Second,
		RetryMax:     5 * time.Minute,
	}
}

// Relay is the single-process (or leader-elected, out of scope here) C6
// worker polling and publishing unpublished outbox rows.
type Relay struct {
	outbox    repository.OutboxRepository
	publisher repository.EventPublisher
	cfg       Config
	logger    zerolog.Logger
}

// NewRelay builds the relay over the outbox repository and broker publisher.
func NewRelay(outbox repository.OutboxRepository, publisher repository.EventPublisher, cfg Config, logger *zerolog.Logger) *Relay {
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run polls forever on cfg.PollInterval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopping")
			return
		case <-ticker.C:
			if err := r.DrainOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("outbox relay batch failed")
			}
		}
	}
}

// DrainOnce runs a single poll-and-publish pass over up to cfg.BatchSize
// unpublished rows, oldest first (§4.6). A row that fails to publish is left
// for a later pass rather than retried in-line, so one bad row never blocks
// the rest of the batch or graceful shutdown (§5).
func (r *Relay) DrainOnce(ctx context.Context) error {
	rows, err := r.outbox.FindUnpublished(ctx, r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.processRow(ctx, row)
	}
	return nil
}

func (r *Relay) processRow(ctx context.Context, row *model.OutboxEvent) {
	log := r.logger.With().Str("outbox_id", row.OutboxID.String()).Str("event_type", row.EventType).Logger()

	if row.RetryCount >= r.cfg.MaxRetries {
		log.Warn().Int("retry_count", row.RetryCount).Msg("outbox row exceeded max retries, dead-letter candidate")
		return
	}

	routingKey := model.RoutingKeyFor(row.EventType)
	if err := r.publisher.Publish(ctx, routingKey, row.Payload); err != nil {
		log.Error().Err(err).Msg("outbox publish failed, will retry")
		// The backoff delay gates the row's next attempt via next_attempt_at
		// instead of blocking here, so a stuck row never holds up the rest
		// of the batch or delays graceful shutdown (§5).
		delay := backoff.Jittered(r.cfg.RetryBase, row.RetryCount, r.cfg.RetryMax)
		if incErr := r.outbox.IncrementRetry(ctx, row.OutboxID.String(), err.Error(), time.Now().Add(delay)); incErr != nil {
			log.Error().Err(incErr).Msg("failed to record outbox retry")
		}
		return
	}

	if err := r.outbox.MarkPublished(ctx, row.OutboxID.String(), time.Now()); err != nil {
		log.Error().Err(err).Msg("failed to mark outbox row published after a successful publish")
	}
}
