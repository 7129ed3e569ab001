package scheduler

import (
	"context"
	"errors"

	paymentdomain "github.com/smallbiznis/quoteflow/internal/payment/domain"
	"go.uber.org/zap"
)

const (
	jobExpireCheckouts = "expire_checkouts"
	jobReplayEvents    = "replay_events"
)

// ExpireCheckoutsJob fails pending deposit records whose checkout session
// expired without a completion event. The quote stays signed, and the next
// RequestCheckout opens a fresh session.
func (s *Scheduler) ExpireCheckoutsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	n, err := s.paymentRepo.ExpirePendingRecords(ctx, s.db.WithContext(ctx), s.clock.Now(), s.cfg.BatchSize)
	if err != nil {
		s.logJobError(ctx, run, "expire pending records failed", err)
		return err
	}
	run.AddProcessed(int(n))
	s.metrics.AddBatchProcessed(jobExpireCheckouts, "payment_records", int(n))
	if n > 0 {
		s.logger(ctx).Info("checkout sessions expired", zap.Int64("count", n))
	}
	return nil
}

// ReplayEventsJob re-applies verified events that are still open. Events
// younger than ReplayAfter are left to processor redeliveries.
func (s *Scheduler) ReplayEventsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	now := s.clock.Now()

	events, err := s.paymentRepo.ListOpenEvents(
		ctx,
		s.db.WithContext(ctx),
		now.Add(-s.cfg.ReplayWindow),
		now.Add(-s.cfg.ReplayAfter),
		s.cfg.BatchSize,
	)
	if err != nil {
		s.logJobError(ctx, run, "list open events failed", err)
		return err
	}

	var errs error
	replayed := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		log := s.logger(ctx).With(
			zap.String("provider", event.Provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.EventType),
		)
		err := s.reconciler.Replay(ctx, event)
		switch {
		case err == nil:
			replayed++
		case errors.Is(err, paymentdomain.ErrProviderNotFound):
			// placeholder events carry no signed payload to rebuild from
			log.Debug("event provider cannot replay, skipped")
		default:
			s.logJobError(ctx, run, "event replay failed", err,
				zap.String("provider_event_id", event.ProviderEventID),
			)
			errs = errors.Join(errs, err)
		}
	}
	run.AddProcessed(replayed)
	s.metrics.AddBatchProcessed(jobReplayEvents, "payment_events", replayed)
	return errs
}
