// Package scheduler runs the three periodic sweeps described in §4.11: due
// scheduled notifications become deliverable, failed notifications past
// their retry window get one more attempt, and old rows are archived.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/ilindan-dev/notifyhub/internal/config"
	"github.com/ilindan-dev/notifyhub/internal/domain/model"
	"github.com/ilindan-dev/notifyhub/internal/domain/repository"
	"github.com/rs/zerolog"
)

// Scheduler owns the three timer loops of C11.
type Scheduler struct {
	notifications repository.NotificationRepository
	worker        config.WorkerConfig
	archive       config.ArchiveConfig
	logger        zerolog.Logger
}

// New builds the C11 scheduler/retry/archiver.
func New(notifications repository.NotificationRepository, worker config.WorkerConfig, archive config.ArchiveConfig, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		notifications: notifications,
		worker:        worker,
		archive:       archive,
		logger:        logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts all three sweeps and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	go s.loop(ctx, s.worker.SchedulerInterval, s.SweepDueScheduled)
	go s.loop(ctx, s.worker.RetrySweepInterval, s.SweepRetryableFailed)
	go s.loop(ctx, s.worker.ArchiverInterval, s.SweepArchive)
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, sweep func(ctx context.Context, now time.Time) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep(ctx, time.Now()); err != nil {
				s.logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepDueScheduled flips status=scheduled rows whose scheduleAt has passed
// to status=pending so the delivery worker pool picks them up, and cancels
// any that expired before ever becoming due (§4.11, §8 invariant 3).
func (s *Scheduler) SweepDueScheduled(ctx context.Context, now time.Time) error {
	due, err := s.notifications.FindDueScheduled(ctx, now, s.worker.BatchSize)
	if err != nil {
		return fmt.Errorf("scheduler: find due scheduled: %w", err)
	}
	for _, n := range due {
		n.Status = model.StatusPending
		if err := s.notifications.Update(ctx, n); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.NotificationID.String()).Msg("failed to promote due scheduled notification")
		}
	}

	expired, err := s.notifications.FindExpiredScheduled(ctx, now, s.worker.BatchSize)
	if err != nil {
		return fmt.Errorf("scheduler: find expired scheduled: %w", err)
	}
	for _, n := range expired {
		n.Status = model.StatusCancelled
		if err := s.notifications.Update(ctx, n); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.NotificationID.String()).Msg("failed to cancel expired scheduled notification")
		}
	}
	if len(due) > 0 || len(expired) > 0 {
		s.logger.Info().Int("promoted", len(due)).Int("cancelled", len(expired)).Msg("scheduled sweep complete")
	}
	return nil
}

// SweepRetryableFailed re-queues failed notifications under the retry limit
// for another delivery attempt, by flipping them back to pending so the
// worker pool's lease predicate picks them up (§4.11).
func (s *Scheduler) SweepRetryableFailed(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.worker.RetryBaseDelay)
	retryable, err := s.notifications.FindRetryableFailed(ctx, s.worker.MaxRetries, cutoff, s.worker.BatchSize)
	if err != nil {
		return fmt.Errorf("scheduler: find retryable failed: %w", err)
	}
	for _, n := range retryable {
		n.Status = model.StatusPending
		if err := s.notifications.Update(ctx, n); err != nil {
			s.logger.Error().Err(err).Str("notification_id", n.NotificationID.String()).Msg("failed to requeue failed notification")
		}
	}
	if len(retryable) > 0 {
		s.logger.Info().Int("requeued", len(retryable)).Msg("retry sweep complete")
	}
	return nil
}

// SweepArchive moves notifications older than the configured threshold out
// of the live collection, bounded by MaxRecordsPerRun/MaxBatchesPerRun, or
// just logs the would-be count when DryRun is set (§4.11).
func (s *Scheduler) SweepArchive(ctx context.Context, now time.Time) error {
	cutoff := now.AddDate(0, 0, -s.archive.ThresholdDays)
	totalArchived := 0
	for batch := 0; batch < s.archive.MaxBatchesPerRun; batch++ {
		if totalArchived >= s.archive.MaxRecordsPerRun {
			break
		}
		count, err := s.notifications.ArchiveOlderThan(ctx, cutoff, s.archive.BatchSize, s.archive.DryRun)
		if err != nil {
			return fmt.Errorf("scheduler: archive older than %s: %w", cutoff, err)
		}
		totalArchived += count
		if count < s.archive.BatchSize {
			break
		}
	}
	if totalArchived > 0 {
		verb := "archived"
		if s.archive.DryRun {
			verb = "would archive"
		}
		s.logger.Info().Int("count", totalArchived).Str("cutoff", cutoff.Format(time.RFC3339)).Msgf("archive sweep %s rows", verb)
	}
	return nil
}
