package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "referral-rewards-backend/internal/common/errors"
	"referral-rewards-backend/internal/common/logger"
	"referral-rewards-backend/internal/features/period/models"
)

// Scheduler polls the active period and fires due resets. Scheduled periods
// roll over into a fresh successor; rolling-expiry periods just complete.
type Scheduler struct {
	periods  *Service
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(periods *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		periods:  periods,
		interval: interval,
		log:      logger.With("reset_scheduler"),
		now:      time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.log.Info().Dur("interval", s.interval).Msg("starting reset scheduler")
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Tick(ctx); err != nil {
					s.log.Error().Err(err).Msg("reset tick failed")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info().Msg("reset scheduler stopped")
}

// Tick inspects the active period once and completes it when its reset is
// due. Exposed so tests can drive the scheduler synchronously.
func (s *Scheduler) Tick(ctx context.Context) error {
	period, err := s.periods.GetActivePeriod(ctx)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsNotFound() {
			return nil
		}
		return err
	}

	now := s.now().UTC()

	switch period.ResetMode {
	case models.ResetModeScheduled:
		schedule := period.ResetConfig.Schedule
		if schedule == nil || schedule.NextResetAt == nil {
			s.log.Warn().Str("period_id", period.ID).Msg("scheduled period has no next reset stamped")
			return nil
		}
		if now.Before(*schedule.NextResetAt) {
			return nil
		}
		s.log.Info().
			Str("period_id", period.ID).
			Time("due_at", *schedule.NextResetAt).
			Msg("scheduled reset due, rolling period over")
		_, err := s.periods.CompletePeriod(ctx, period.ID, true)
		return err

	case models.ResetModeRollingExpiry:
		if period.EndsAt == nil || now.Before(*period.EndsAt) {
			return nil
		}
		s.log.Info().
			Str("period_id", period.ID).
			Time("ends_at", *period.EndsAt).
			Msg("rolling period expired, completing")
		_, err := s.periods.CompletePeriod(ctx, period.ID, false)
		return err
	}

	// Manual periods only end by admin action.
	return nil
}
